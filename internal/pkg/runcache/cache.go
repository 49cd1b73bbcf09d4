package runcache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/utils"
	"k8s.io/klog/v2"
)

const (
	DefaultBaseDir = "./compliance-output"
	cacheDirName   = ".cache"
	cacheFileName  = "companies.json"
)

// MarkerFiles 可复用的输出目录必须包含的文件
var MarkerFiles = []string{"empresa.json", "log-auditoria.json"}

// Cache 公司运行缓存，落盘为 <base>/.cache/companies.json
// 所有读写失败只记录警告，按未命中或空操作处理
type Cache struct {
	baseDir string
	mutex   sync.Mutex
	now     func() time.Time
}

type Option func(*Cache)

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(baseDir string, opts ...Option) *Cache {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	c := &Cache{baseDir: baseDir, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) BaseDir() string { return c.baseDir }

func (c *Cache) filePath() string {
	return filepath.Join(c.baseDir, cacheDirName, cacheFileName)
}

// FindExistingRuns 读取全部缓存条目，文件缺失或损坏时返回空列表
func (c *Cache) FindExistingRuns() []model.CachedRun {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.load()
}

func (c *Cache) load() []model.CachedRun {
	data, err := os.ReadFile(c.filePath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			klog.Warningf("[runcache.load] 读取缓存失败: %v", err)
		}
		return []model.CachedRun{}
	}
	var runs []model.CachedRun
	if err := json.Unmarshal(data, &runs); err != nil {
		klog.Warningf("[runcache.load] 缓存文件损坏，按空缓存处理: %v", err)
		return []model.CachedRun{}
	}
	if runs == nil {
		runs = []model.CachedRun{}
	}
	return runs
}

// store 先写临时文件再重命名，整体覆盖
func (c *Cache) store(runs []model.CachedRun) {
	path := c.filePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		klog.Warningf("[runcache.store] 创建缓存目录失败: %v", err)
		return
	}
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		klog.Warningf("[runcache.store] 序列化缓存失败: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		klog.Warningf("[runcache.store] 写入缓存失败: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		klog.Warningf("[runcache.store] 替换缓存文件失败: %v", err)
		_ = os.Remove(tmp)
	}
}

// FindSimilarRun CNPJ 精确匹配优先，其次按归一化名称匹配
func (c *Cache) FindSimilarRun(name, taxID string) (*model.CachedRun, bool) {
	runs := c.FindExistingRuns()

	if digits := utils.OnlyDigits(taxID); digits != "" {
		for i := range runs {
			if utils.OnlyDigits(runs[i].Profile.TaxID) == digits {
				return &runs[i], true
			}
		}
	}

	normalized := utils.NormalizeName(name)
	if normalized == "" {
		return nil, false
	}
	for i := range runs {
		if utils.NormalizeName(runs[i].Profile.Name) == normalized {
			return &runs[i], true
		}
	}
	return nil, false
}

// SaveRun 按身份（CNPJ 或归一化名称）去重后追加
func (c *Cache) SaveRun(profile model.CompanyProfile, outputDir string, completed bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	runs := removeIdentity(c.load(), profile)
	runs = append(runs, model.CachedRun{
		Profile:       profile,
		OutputDir:     outputDir,
		LastExecution: c.now().UTC(),
		Completed:     completed,
	})
	c.store(runs)
	klog.V(6).Infof("[runcache.SaveRun] 缓存已更新: company=%s, dir=%s, completed=%v", profile.Name, outputDir, completed)
}

func removeIdentity(runs []model.CachedRun, profile model.CompanyProfile) []model.CachedRun {
	taxID := utils.OnlyDigits(profile.TaxID)
	name := utils.NormalizeName(profile.Name)
	filtered := make([]model.CachedRun, 0, len(runs))
	for _, r := range runs {
		sameTaxID := taxID != "" && utils.OnlyDigits(r.Profile.TaxID) == taxID
		sameName := name != "" && utils.NormalizeName(r.Profile.Name) == name
		if sameTaxID || sameName {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// MarkCompleted 按 CNPJ 定位条目并标记完成，未找到时不做任何事
func (c *Cache) MarkCompleted(profile model.CompanyProfile) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	taxID := utils.OnlyDigits(profile.TaxID)
	runs := c.load()
	for i := range runs {
		if utils.OnlyDigits(runs[i].Profile.TaxID) == taxID {
			runs[i].Completed = true
			runs[i].LastExecution = c.now().UTC()
			c.store(runs)
			return
		}
	}
	klog.V(6).Infof("[runcache.MarkCompleted] 未找到缓存条目: cnpj=%s", profile.TaxID)
}

// Clear 删除缓存文件
func (c *Cache) Clear() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := os.Remove(c.filePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ValidateOutputDir 目录存在且包含全部标记文件才可复用
func ValidateOutputDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, name := range MarkerFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// ListGeneratedFiles 排序后的可见文件名，排除以 '.' 开头的文件
func ListGeneratedFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files
}

// GenerateOutputDir <base>/<规范化公司名>-YYYY-MM-DD
// 同一天对同一公司重复生成会得到相同目录
func (c *Cache) GenerateOutputDir(profile model.CompanyProfile, baseDir string) string {
	if baseDir == "" {
		baseDir = c.baseDir
	}
	name := utils.SanitizeFileName(profile.Name)
	return filepath.Join(baseDir, name+"-"+c.now().Format("2006-01-02"))
}
