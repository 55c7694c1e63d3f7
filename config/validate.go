// Copyright 2021 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/juju/errors"
)

// Supported data source name prefixes.
var dsnPrefixes = []string{
	"sqlite://",
	"mysql://",
	"postgres://",
	"postgresql://",
	"redis://",
	"rediss://",
	"mongodb://",
	"mongodb+srv://",
	"csv://",
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	validate = validator.New(validator.WithRequiredStructEnabled())
	// name fields after their keys in the config file
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := validate.RegisterValidation("dsn", validateDSN); err != nil {
		panic(err)
	}
	if err := entranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	if err := validate.RegisterTranslation("dsn", translator, func(trans ut.Translator) error {
		return trans.Add("dsn", "{0} must be a data source name with a supported scheme", true)
	}, func(trans ut.Translator, fe validator.FieldError) string {
		message, _ := trans.T("dsn", fe.Field())
		return message
	}); err != nil {
		panic(err)
	}
}

func validateDSN(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, prefix := range dsnPrefixes {
		if strings.HasPrefix(value, prefix) && len(value) > len(prefix) {
			return true
		}
	}
	return false
}

func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return errors.NotValidf("%s", fieldErrors[0].Translate(translator))
		}
		return errors.Trace(err)
	}
	if config.Recommender.Boolean && RequiresPreferenceValues(config.Similarity.Metric) {
		return errors.NotValidf("similarity metric %s on boolean preferences", config.Similarity.Metric)
	}
	return nil
}
