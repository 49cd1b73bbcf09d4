package utils

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	fileNameInvalid  = regexp.MustCompile(`[^a-z0-9\-_]`)
	repeatedHyphens  = regexp.MustCompile(`-+`)
	cnpjFirstWeights = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateStruct 使用 validate 标签校验结构体，额外注册了 cnpj 规则
func ValidateStruct(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
			return ValidateCNPJ(fl.Field().String())
		})
	})
	return validate.Struct(v)
}

// OnlyDigits 去除非数字字符
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCNPJ 校验 CNPJ 的长度与两位校验位
func ValidateCNPJ(cnpj string) bool {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 {
		return false
	}
	if strings.Count(digits, digits[:1]) == 14 {
		return false
	}

	nums := make([]int, 14)
	for i := range digits {
		nums[i] = int(digits[i] - '0')
	}

	// 第二位校验位的权重为 6 加上第一位的权重
	secondWeights := append([]int{6}, cnpjFirstWeights...)
	return checkDigit(nums[:12], cnpjFirstWeights) == nums[12] &&
		checkDigit(nums[:13], secondWeights) == nums[13]
}

func checkDigit(nums, weights []int) int {
	sum := 0
	for i, n := range nums {
		sum += n * weights[i]
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// FormatCNPJ 格式化为 00.000.000/0000-00，长度不符时原样返回
func FormatCNPJ(cnpj string) string {
	d := OnlyDigits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SanitizeFileName 转为小写，非法字符替换为 '-'，合并连续的 '-' 并去掉首尾 '-'
func SanitizeFileName(name string) string {
	s := fileNameInvalid.ReplaceAllString(strings.ToLower(name), "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeName 公司名归一化：小写且仅保留 ASCII 字母数字
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
