package handler

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Trans 全局翻译器，InitTrans 之前为 nil
var Trans ut.Translator

const maxChatIDLen = 128

// 自定义规则在包加载时注册，未初始化翻译器时绑定也能正常校验
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("chatid", validateChatID)
	}
}

// InitTrans 初始化翻译器
// locale 为 "zh" 或 "en"，其它值按英文处理
func InitTrans(locale string) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	// 报错信息使用 json / uri 字段名而不是结构体字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "uri"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})

	enT := en.New()
	uni := ut.New(enT, zh.New(), enT)
	trans, ok := uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	var err error
	chatIDText := "{0} must be a chat id without whitespace"
	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, trans)
		chatIDText = "{0}必须是不含空白字符的会话ID"
	default:
		err = en_translations.RegisterDefaultTranslations(v, trans)
	}
	if err != nil {
		return err
	}

	err = v.RegisterTranslation("chatid", trans,
		func(ut ut.Translator) error {
			return ut.Add("chatid", chatIDText, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("chatid", fe.Field())
			return t
		},
	)
	if err != nil {
		return err
	}
	Trans = trans
	return nil
}

// validateChatID 会话 id 不含空白字符且长度有限
func validateChatID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > maxChatIDLen {
		return false
	}
	return strings.IndexFunc(id, unicode.IsSpace) < 0
}

// RemoveTopStruct 去除提示信息中的结构体名称
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}
