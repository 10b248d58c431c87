// Package exposition 实现指标暴露文本格式的解析
//
// 格式为面向行的纯文本，每个非注释、非空行为一个样本：
//
//	name{k1="v1",k2="v2"} value [timestamp]
//	name value [timestamp]
//
// 上游输出不保证完全合法，解析采取尽力而为策略：
// 单行格式错误时静默跳过该行，绝不因此中断整个采集周期
package exposition

import (
	"regexp"
	"strconv"
	"strings"

	"proxywatch/pkg/models"
)

var (
	// 带标签形式：name{labels} value [timestamp]
	labeledLineRegex = regexp.MustCompile(`^([a-zA-Z_:][a-zA-Z0-9_:]*)\{(.*)\}\s+(\S+)(?:\s+(\d+))?$`)
	// 无标签形式：name value [timestamp]
	unlabeledLineRegex = regexp.MustCompile(`^([a-zA-Z_:][a-zA-Z0-9_:]*)\s+(\S+)(?:\s+(\d+))?$`)
	// 单个标签对：key="value"，值内支持\"与\\转义
	labelPairRegex = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)="((?:[^"\\]|\\.)*)"`)
)

// Parse 将指标暴露文本解析为样本列表
// 注释行（#开头）与空行被跳过，无法解析的行被静默丢弃
func Parse(text string) []models.MetricSample {
	lines := strings.Split(text, "\n")
	samples := make([]models.MetricSample, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if sample, ok := parseLine(line); ok {
			samples = append(samples, sample)
		}
	}

	return samples
}

// parseLine 解析单行，依次尝试带标签与无标签两种形式
func parseLine(line string) (models.MetricSample, bool) {
	if m := labeledLineRegex.FindStringSubmatch(line); m != nil {
		value, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return models.MetricSample{}, false
		}
		return models.MetricSample{
			Name:      m[1],
			Labels:    parseLabels(m[2]),
			Value:     value,
			Timestamp: parseTimestamp(m[4]),
		}, true
	}

	if m := unlabeledLineRegex.FindStringSubmatch(line); m != nil {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return models.MetricSample{}, false
		}
		return models.MetricSample{
			Name:      m[1],
			Value:     value,
			Timestamp: parseTimestamp(m[3]),
		}, true
	}

	return models.MetricSample{}, false
}

// parseLabels 解析花括号内的标签对，重复键以后出现者为准
func parseLabels(text string) map[string]string {
	matches := labelPairRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	labels := make(map[string]string, len(matches))
	for _, m := range matches {
		labels[m[1]] = unescapeLabelValue(m[2])
	}
	return labels
}

// unescapeLabelValue 还原标签值中的转义字符
func unescapeLabelValue(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))
	escaped := false
	for _, r := range value {
		if escaped {
			switch r {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseTimestamp 解析可选的epoch毫秒时间戳，缺失或非法时返回0
func parseTimestamp(text string) int64 {
	if text == "" {
		return 0
	}
	ts, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
