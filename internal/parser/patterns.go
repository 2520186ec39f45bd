package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	FormatAuto    = "auto"
	FormatAndroid = "android"
	FormatIOS     = "ios"
	FormatCustom  = "custom"
)

// 日期和时间都按固定形状锚定在行首，正文里出现 " - xxx: " 不会被误判为消息头
const (
	datePart = `(?P<date>\d{1,2}[/.]\d{1,2}[/.]\d{2,4})`
	timePart = `(?P<time>\d{1,2}:\d{2}(?::\d{2})?(?:\s?[AaPp]\.?\s?[Mm]\.?)?)`
	bodyPart = `(?P<sender>[^:]+?): ?(?P<text>.*)$`
)

// 匹配 "1/1/24, 10:00 - Alice: Hi" 或 "1/1/24, 10:00 PM - Alice: Hi"
var androidRe = regexp.MustCompile(`^` + datePart + `,? ` + timePart + ` - ` + bodyPart)

// 匹配 "[1/1/24, 10:00:00 AM] Alice: Hi"
var iosRe = regexp.MustCompile(`^\[` + datePart + `,? ` + timePart + `\] ` + bodyPart)

var requiredGroups = []string{"date", "time", "sender", "text"}

// leadingFlags 开头的 (?i) 之类的标志组不影响锚定
var leadingFlags = regexp.MustCompile(`^(?:\(\?[imsU-]+\))+`)

// Pattern 一种消息头格式
type Pattern struct {
	Name string
	re   *regexp.Regexp

	date, time, sender, text int
}

func newPattern(name string, re *regexp.Regexp) (*Pattern, error) {
	for _, g := range requiredGroups {
		if re.SubexpIndex(g) < 0 {
			return nil, fmt.Errorf("pattern %s: missing named group %q", name, g)
		}
	}
	if !strings.HasPrefix(leadingFlags.ReplaceAllString(re.String(), ""), "^") {
		return nil, fmt.Errorf("pattern %s: must be anchored at line start", name)
	}
	return &Pattern{
		Name:   name,
		re:     re,
		date:   re.SubexpIndex("date"),
		time:   re.SubexpIndex("time"),
		sender: re.SubexpIndex("sender"),
		text:   re.SubexpIndex("text"),
	}, nil
}

// AndroidPattern Android 导出格式
func AndroidPattern() *Pattern {
	p, _ := newPattern(FormatAndroid, androidRe)
	return p
}

// IOSPattern iOS 导出格式
func IOSPattern() *Pattern {
	p, _ := newPattern(FormatIOS, iosRe)
	return p
}

// CustomPattern 编译用户提供的正则，必须以 ^ 开头并包含 date/time/sender/text 命名分组
func CustomPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile header pattern: %w", err)
	}
	return newPattern(FormatCustom, re)
}

// PatternFor 按名称取内置格式
func PatternFor(format, customExpr string) (*Pattern, error) {
	switch format {
	case FormatAndroid:
		return AndroidPattern(), nil
	case FormatIOS:
		return IOSPattern(), nil
	case FormatCustom:
		return CustomPattern(customExpr)
	}
	return nil, fmt.Errorf("unknown header format: %q", format)
}

// detectWindow 自动识别时只看前面这么多行非空行
const detectWindow = 64

// DetectPattern 统计前若干行中各内置格式的命中数，取命中最多的，平局时取 Android
func DetectPattern(lines []string) *Pattern {
	candidates := []*Pattern{AndroidPattern(), IOSPattern()}
	hits := make([]int, len(candidates))

	seen := 0
	for _, line := range lines {
		line = NormalizeLine(line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		for i, p := range candidates {
			if p.re.MatchString(line) {
				hits[i]++
			}
		}
		seen++
		if seen >= detectWindow {
			break
		}
	}

	best := 0
	for i := range candidates {
		if hits[i] > hits[best] {
			best = i
		}
	}
	return candidates[best]
}

// TimestampParser 依次尝试 日期布局 × 时间布局
type TimestampParser struct {
	dateLayouts []string
	timeLayouts []string
	loc         *time.Location
}

var (
	monthFirstDates = []string{"1/2/06", "1/2/2006", "1.2.06", "1.2.2006"}
	dayFirstDates   = []string{"2/1/06", "2/1/2006", "2.1.06", "2.1.2006"}
	defaultTimes    = []string{"15:04", "15:04:05", "3:04PM", "3:04:05PM"}
)

// NewTimestampParser 布局为空时使用默认值；dayFirst 只影响默认日期布局
func NewTimestampParser(dateLayouts, timeLayouts []string, dayFirst bool, loc *time.Location) *TimestampParser {
	if len(dateLayouts) == 0 {
		dateLayouts = monthFirstDates
		if dayFirst {
			dateLayouts = dayFirstDates
		}
	}
	if len(timeLayouts) == 0 {
		timeLayouts = defaultTimes
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TimestampParser{dateLayouts: dateLayouts, timeLayouts: timeLayouts, loc: loc}
}

// Parse 解析消息头里的日期和时间
func (p *TimestampParser) Parse(date, clock string) (time.Time, error) {
	clock = normalizeClock(clock)
	value := date + " " + clock
	for _, dl := range p.dateLayouts {
		for _, tl := range p.timeLayouts {
			if t, err := time.ParseInLocation(dl+" "+tl, value, p.loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, value)
}

// normalizeClock "10:00 p.m." -> "10:00PM"
func normalizeClock(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, " ", "")
}
