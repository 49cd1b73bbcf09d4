package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ExtractJSON 从模型返回的文本中提取 JSON 片段并解析为 T
// 贪婪匹配：起点取最先出现的 '[' 或 '{'，终点取同类型的最后一个闭合符，
// 不做括号配对；文本中有多个同类片段时整个跨度无法解析，返回 fallback
// 未找到或解析失败时返回 fallback，不返回错误
func ExtractJSON[T any](content string, fallback T) T {
	start := strings.IndexAny(content, "[{")
	if start < 0 {
		klog.Warningf("[utils.ExtractJSON] 未找到 JSON 片段，使用默认值")
		return fallback
	}
	closer := byte('}')
	if content[start] == '[' {
		closer = ']'
	}
	return decodeSpan(content, start, strings.LastIndexByte(content, closer), fallback)
}

// ExtractJSONArray 只匹配数组片段：第一个 '[' 到最后一个 ']'（贪婪）
func ExtractJSONArray[T any](content string, fallback T) T {
	start := strings.IndexByte(content, '[')
	if start < 0 {
		klog.Warningf("[utils.ExtractJSONArray] 未找到 JSON 数组，使用默认值")
		return fallback
	}
	return decodeSpan(content, start, strings.LastIndexByte(content, ']'), fallback)
}

// ExtractFirstJSONArray 非贪婪匹配：第一个 '[' 到其后第一个 ']'
// 适用于字符串列表，不支持嵌套数组
func ExtractFirstJSONArray[T any](content string, fallback T) T {
	start := strings.IndexByte(content, '[')
	if start < 0 {
		klog.Warningf("[utils.ExtractFirstJSONArray] 未找到 JSON 数组，使用默认值")
		return fallback
	}
	end := strings.IndexByte(content[start:], ']')
	if end < 0 {
		return fallback
	}
	return decodeSpan(content, start, start+end, fallback)
}

// ExtractJSONObject 只匹配对象片段：第一个 '{' 到最后一个 '}'
func ExtractJSONObject[T any](content string, fallback T) T {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		klog.Warningf("[utils.ExtractJSONObject] 未找到 JSON 对象，使用默认值")
		return fallback
	}
	return decodeSpan(content, start, strings.LastIndexByte(content, '}'), fallback)
}

func decodeSpan[T any](content string, start, end int, fallback T) T {
	if end <= start {
		klog.Warningf("[utils.ExtractJSON] JSON 片段不完整，使用默认值")
		return fallback
	}
	var out T
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		klog.Warningf("[utils.ExtractJSON] JSON 解析失败，使用默认值: %v", err)
		return fallback
	}
	return out
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}
