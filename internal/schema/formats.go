package schema

import (
	"encoding/base64"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/okian/roadwatch/internal/domain/model"
)

// roleFormatChecker accepts every spelling model.ParseRole understands.
type roleFormatChecker struct{}

func (roleFormatChecker) IsFormat(input any) bool {
	s, ok := input.(string)
	if !ok {
		return false
	}
	_, err := model.ParseRole(s)
	return err == nil
}

type base64FormatChecker struct{}

func (base64FormatChecker) IsFormat(input any) bool {
	s, ok := input.(string)
	if !ok {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

var registerOnce sync.Once

// RegisterCustomFormats registers the role and base64 formats. It is safe to
// call more than once.
func RegisterCustomFormats() {
	registerOnce.Do(func() {
		gojsonschema.FormatCheckers.Add("role", roleFormatChecker{})
		gojsonschema.FormatCheckers.Add("base64", base64FormatChecker{})
	})
}
