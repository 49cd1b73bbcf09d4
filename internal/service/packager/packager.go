package packager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
	"k8s.io/klog/v2"
)

// FileName 最终压缩包名称
const FileName = "pacote-final.zip"

// Package 将输出目录中的全部普通文件打包为 <outputDir>/pacote-final.zip
// 压缩包自身与子目录不包含在内；返回压缩包路径与写入的文件数
func Package(outputDir string) (string, int, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read output dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == FileName || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	zipPath := filepath.Join(outputDir, FileName)
	tmpPath := zipPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create package: %w", err)
	}
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := addFile(zw, filepath.Join(outputDir, name), name); err != nil {
			zw.Close()
			out.Close()
			return "", 0, err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", 0, fmt.Errorf("failed to finalize package: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close package: %w", err)
	}
	if err := os.Rename(tmpPath, zipPath); err != nil {
		return "", 0, fmt.Errorf("failed to move package: %w", err)
	}

	klog.V(6).Infof("[packager.Package] 压缩包已生成: path=%s, files=%d", zipPath, len(names))
	return zipPath, len(names), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to compress %s: %w", name, err)
	}
	return nil
}
