package main

import (
	"flag"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"k8s.io/klog/v2"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/mcpserver"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"github.com/dpo2u/lgpdkit/internal/pkg/runcache"
	"github.com/dpo2u/lgpdkit/internal/service"
)

func main() {
	// stdout 留给 MCP 协议，日志只写 stderr
	klog.InitFlags(nil)
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer klog.Flush()
	log.SetOutput(os.Stderr)

	cfg := config.GetConfig()
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create generation backend: %v", err)
	}

	svc := service.NewComplianceService(cfg, client, runcache.New(cfg.Output.Dir), nil, nil)
	tools := mcpserver.NewTools(svc, mcpserver.DefaultClientFactory(cfg))

	klog.V(6).Infof("%s %s 通过 stdio 提供服务", mcpserver.ServerName, mcpserver.ServerVersion)
	if err := server.ServeStdio(mcpserver.NewServer(tools)); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
