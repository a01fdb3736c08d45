// Package config defines the YAML format of layer definition files.
package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

type Mapping struct {
	Areas  Areas  `yaml:"areas"`
	Layers Layers `yaml:"layers"`
}

type Areas struct {
	AreaTags   []Key `yaml:"area_tags"`
	LinearTags []Key `yaml:"linear_tags"`
}

// Layers keeps the order of the layers in the file.
type Layers []*Layer

type Layer struct {
	Name          string    `yaml:"-"`
	GeometryTypes []string  `yaml:"geometry_types"`
	Mapping       KeyValues `yaml:"mapping"`
	Filters       *Filters  `yaml:"filters"`
}

type Filters struct {
	Reject        KeyValues      `yaml:"reject"`
	Require       KeyValues      `yaml:"require"`
	RejectRegexp  KeyRegexpValue `yaml:"reject_regexp"`
	RequireRegexp KeyRegexpValue `yaml:"require_regexp"`
}

type Key string
type Value string

type OrderedValue struct {
	Value
	Order int
}

type KeyValues map[Key][]OrderedValue
type KeyRegexpValue map[Key]string

func (l *Layers) UnmarshalYAML(unmarshal func(interface{}) error) error {
	slice := yaml.MapSlice{}
	err := unmarshal(&slice)
	if err != nil {
		return err
	}
	for _, item := range slice {
		name, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("layer name '%v' not a string", item.Key)
		}
		// decode the layer body again into the typed struct
		b, err := yaml.Marshal(item.Value)
		if err != nil {
			return err
		}
		layer := Layer{}
		if err := yaml.UnmarshalStrict(b, &layer); err != nil {
			return fmt.Errorf("layer '%s': %v", name, err)
		}
		layer.Name = name
		*l = append(*l, &layer)
	}
	return nil
}

func (kv *KeyValues) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if *kv == nil {
		*kv = make(map[Key][]OrderedValue)
	}
	slice := yaml.MapSlice{}
	err := unmarshal(&slice)
	if err != nil {
		return err
	}
	order := 0
	for _, item := range slice {
		k, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("mapping key '%v' not a string", item.Key)
		}
		values, ok := item.Value.([]interface{})
		if !ok {
			return fmt.Errorf("mapping values of '%s' not a list", k)
		}
		for _, v := range values {
			switch v := v.(type) {
			case string:
				(*kv)[Key(k)] = append((*kv)[Key(k)], OrderedValue{Value: Value(v), Order: order})
			case int, int64, float64:
				// unquoted numbers like admin_level: [2, 4]
				(*kv)[Key(k)] = append((*kv)[Key(k)], OrderedValue{Value: Value(fmt.Sprint(v)), Order: order})
			case bool:
				return fmt.Errorf("mapping value '%v' of '%s' needs quotes", v, k)
			default:
				return fmt.Errorf("mapping value '%v' not a string", v)
			}
			order += 1
		}
	}
	return nil
}
