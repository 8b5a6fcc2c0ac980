package service

import (
	"context"
	"fmt"
	"strings"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/log"
)

// ContextFormatter 把检索结果序列化为带 [TEXT-n] / [IMAGE-n] / [TABLE-n] 标记的上下文文本。
type ContextFormatter struct {
	vision        VisionService
	visionEnabled bool
}

// NewContextFormatter 创建格式化器。visionEnabled 是全局开关，为 false 时从不发起实时分析。
func NewContextFormatter(vision VisionService, visionEnabled bool) *ContextFormatter {
	return &ContextFormatter{vision: vision, visionEnabled: visionEnabled}
}

// VisionActive 返回本次调用是否会进行实时图像分析（全局开关与调用开关同时打开）。
func (f *ContextFormatter) VisionActive(useVision bool) bool {
	return useVision && f.visionEnabled && f.vision != nil
}

// EscapeBraces 把花括号加倍，避免内容被当作提示词模板占位符。
func EscapeBraces(s string) string {
	if s == "" {
		return s
	}
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

// Format 生成上下文文本。三组都为空时返回空串，由调用方视为"无上下文"。
// 图片按顺序逐张分析：实时分析成功用 Real-time，失败回退到入库时的描述。
func (f *ContextFormatter) Format(ctx context.Context, result model.RetrievalResult, query string, useVision bool, lang Language) string {
	counts := result.Counts()
	log.Debugf("[ContextFormatter] 上下文来源: %d text, %d images, %d tables", counts.Text, counts.Images, counts.Tables)

	var parts []string

	if len(result.Text) > 0 {
		parts = append(parts, "=== TEXT CONTENT ===\n")
		for i, item := range result.Text {
			parts = append(parts, fmt.Sprintf("[TEXT-%d] (Page %s)\n%s\n", i+1, item.PageLabel(), EscapeBraces(item.Content)))
		}
	}

	if len(result.Images) > 0 {
		live := f.VisionActive(useVision)
		parts = append(parts, "\n=== IMAGES ===\n")
		for i, item := range result.Images {
			url := item.ImageURL()
			parts = append(parts, fmt.Sprintf("[IMAGE-%d] (Page %s)\n", i+1, item.PageLabel()))
			parts = append(parts, f.describeImage(ctx, i+1, item, url, query, live, lang))
			parts = append(parts, fmt.Sprintf("URL: %s\n", url))
		}
	}

	if len(result.Tables) > 0 {
		parts = append(parts, "\n=== TABLES ===\n")
		for i, item := range result.Tables {
			format := "Plain Text"
			if item.HasHTML() {
				format = "HTML"
			}
			parts = append(parts, fmt.Sprintf("[TABLE-%d] (Page %s, Format: %s)\n%s\n", i+1, item.PageLabel(), format, EscapeBraces(item.Content)))
		}
	}

	contextText := strings.Join(parts, "\n")
	log.Infof("[ContextFormatter] 上下文格式化完成, 共 %d 字符", len(contextText))
	return contextText
}

func (f *ContextFormatter) describeImage(ctx context.Context, n int, item model.RetrievedItem, url, query string, live bool, lang Language) string {
	stored := EscapeBraces(item.Content)
	if !live || url == "" {
		log.Debugf("[ContextFormatter] IMAGE-%d: 使用入库时的描述 (vision 未启用)", n)
		return fmt.Sprintf("Visual Analysis: %s\n", stored)
	}

	outcome := f.vision.Analyze(ctx, url, query, lang)
	if outcome.Succeeded() {
		log.Debugf("[ContextFormatter] IMAGE-%d: 使用实时分析 (%s)", n, outcome.Status)
		return fmt.Sprintf("Visual Analysis (Real-time): %s\n", EscapeBraces(outcome.Analysis))
	}
	log.Warnw("[ContextFormatter] 实时图像分析不可用, 回退到入库时的描述",
		"image", fmt.Sprintf("IMAGE-%d", n),
		"status", string(outcome.Status),
		"error", errString(outcome.Err),
	)
	return fmt.Sprintf("Visual Analysis (Stored): %s\n", stored)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
