// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/helpers"
)

// Configuration describes the network manager.
type Configuration struct {
	// Sources are where the links come from.
	Sources []Source `validate:"dive"`
	Loop    actor.Configuration
}

// Source is a source of links. Either a static file or a routing
// protocol feeding links through the API.
type Source struct {
	StaticFile string `validate:"required_without=Protocol,excluded_with=Protocol"`
	Protocol   string `validate:"omitempty,oneof=ospf"`
}

// DefaultConfiguration returns the default configuration of the
// network manager.
func DefaultConfiguration() Configuration {
	return Configuration{
		Loop: actor.DefaultConfiguration(),
	}
}

// SourcesUnmarshallerHook accepts a path in place of a source, and a
// single source in place of a list.
func SourcesUnmarshallerHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (any, error) {
		from = helpers.ElemOrIdentity(from)
		to = helpers.ElemOrIdentity(to)
		if !to.IsValid() {
			return from.Interface(), nil
		}
		switch to.Type() {
		case reflect.TypeOf([]Source{}):
			switch from.Kind() {
			case reflect.String:
				return []Source{{StaticFile: from.String()}}, nil
			case reflect.Map:
				return []any{from.Interface()}, nil
			}
		case reflect.TypeOf(Source{}):
			if from.Kind() == reflect.String {
				return Source{StaticFile: from.String()}, nil
			}
		}
		return from.Interface(), nil
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(SourcesUnmarshallerHook())
}
