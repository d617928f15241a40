package config

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/smykla-skalski/hookgate/pkg/config"
)

var durationType = reflect.TypeFor[config.Duration]()

// decoderConfig returns the mapstructure settings shared by every unmarshal.
// Durations accept "1s" strings and raw nanosecond numbers; strings coming
// from the environment split on commas into slices. The caller sets Result.
func decoderConfig() *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.DecodeHookFuncType(numberToDurationHook),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		TagName:          "koanf",
	}
}

// numberToDurationHook converts TOML integers and JSON floats into
// config.Duration nanoseconds.
func numberToDurationHook(_, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	switch v := data.(type) {
	case int64:
		return config.Duration(time.Duration(v)), nil
	case int:
		return config.Duration(time.Duration(v)), nil
	case float64:
		return config.Duration(time.Duration(v)), nil
	}

	return data, nil
}
