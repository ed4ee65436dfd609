package service

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/hashicorp/go-version"
)

var (
	normalizedNameRegex = regexp.MustCompile(`^[a-z0-9]+$`)
	versionRegex        = regexp.MustCompile(`^(0|[1-9]\d*)(\.(0|[1-9]\d*)){1,3}$`)
	integrityRegex      = regexp.MustCompile(`^` + model.IntegrityPrefix + `[0-9a-fA-F]{64}$`)
)

// 校验失败提示
const (
	msgInvalidName           = "名称不能包含除空格以外的空白字符或不可见字符"
	msgInvalidNormalizedName = "规范名称只能包含小写字母和数字"
	msgInvalidVersion        = "版本格式不正确，应为 x.y(.z(.e))"
	msgInvalidIntegrity      = "SHA256 格式不正确"
	msgInvalidArch           = "游戏类型不正确"
	msgDuplicateDependency   = "依赖项不能重复"
)

// PackageValidator 包信息校验器
type PackageValidator interface {
	// Validate 校验包信息，返回全部错误提示，无错误时返回空
	Validate(d *model.UploadDescriptor) []string
}

// packageValidator 基于 validator/v10 的实现
type packageValidator struct {
	validate *validator.Validate
}

// NewPackageValidator 创建包信息校验器
func NewPackageValidator() PackageValidator {
	v := validator.New()

	// 错误中使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 只含空白的字符串视为空
	mustRegister(v, "notblank", validators.NotBlank)
	mustRegister(v, "pkgname", func(fl validator.FieldLevel) bool {
		return IsValidName(fl.Field().String())
	})
	mustRegister(v, "normname", func(fl validator.FieldLevel) bool {
		return normalizedNameRegex.MatchString(fl.Field().String())
	})
	mustRegister(v, "pkgversion", func(fl validator.FieldLevel) bool {
		return IsValidVersion(fl.Field().String())
	})
	mustRegister(v, "integrity", func(fl validator.FieldLevel) bool {
		return integrityRegex.MatchString(fl.Field().String())
	})
	mustRegister(v, "arch", func(fl validator.FieldLevel) bool {
		return isValidArch(fl.Field().String())
	})

	return &packageValidator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

// Validate 校验包信息
func (p *packageValidator) Validate(d *model.UploadDescriptor) []string {
	if d == nil {
		return []string{"包信息不能为空"}
	}

	err := p.validate.Struct(d)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translate(fe))
	}
	return messages
}

// translate 将字段错误转换为提示信息，依赖项字段带上路径前缀
func translate(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required", "notblank":
		msg = fmt.Sprintf("%s 不能为空", fe.Field())
	case "max":
		msg = fmt.Sprintf("%s 长度不能超过 %s", fe.Field(), fe.Param())
	case "url":
		msg = fmt.Sprintf("%s 不是合法的URL", fe.Field())
	case "pkgname":
		msg = msgInvalidName
	case "normname":
		msg = msgInvalidNormalizedName
	case "pkgversion":
		msg = msgInvalidVersion
	case "integrity":
		msg = msgInvalidIntegrity
	case "arch":
		msg = msgInvalidArch
	case "unique":
		msg = msgDuplicateDependency
	default:
		msg = fmt.Sprintf("%s 格式不正确", fe.Field())
	}

	if strings.HasPrefix(path, "dependencies[") {
		return path + ": " + msg
	}
	return msg
}

// IsValidName 名称去掉ASCII空格后不能包含控制、格式等不可见字符，也不能包含其它空白字符
func IsValidName(name string) bool {
	for _, r := range strings.ReplaceAll(name, " ", "") {
		if unicode.In(r, unicode.C) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// IsValidVersion 版本号为2到4段非负整数，不允许前导零，每段不超过int32
func IsValidVersion(v string) bool {
	if !versionRegex.MatchString(v) {
		return false
	}
	for _, part := range strings.Split(v, ".") {
		if _, err := strconv.ParseInt(part, 10, 32); err != nil {
			return false
		}
	}
	_, err := version.NewVersion(v)
	return err == nil
}

func isValidArch(arch string) bool {
	for _, a := range model.Arches {
		if a == arch {
			return true
		}
	}
	return false
}
