package declare

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TagName is the struct tag read by FromStruct.
const TagName = "cache"

// FromStruct builds a source from the tagged fields of the struct ptr points to.
// Fields are read when the source is scanned, so later changes to the struct
// are picked up by the next scan.
//
//	type Defaults struct {
//		Retries int    `cache:"retries,ttl=100s"`
//		Motd    string `cache:"motd"`
//		Theme   string `cache:",ttl=1h"` // key defaults to "Theme"
//	}
//
// Tagged unexported fields are reported as ErrAccessDenied at scan time.
func FromStruct(ptr any) (Source, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("declare: FromStruct needs a non-nil struct pointer, got %T", ptr)
	}
	elem := rv.Elem()
	typ := elem.Type()

	var decls []Declaration
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, ok := field.Tag.Lookup(TagName)
		if !ok || tag == "-" {
			continue
		}

		d, err := parseTag(field.Name, tag)
		if err != nil {
			return nil, fmt.Errorf("declare: field %s.%s: %w", typ.Name(), field.Name, err)
		}

		if !field.IsExported() {
			d.Value = func() (any, error) {
				return nil, fmt.Errorf("%w: unexported field %s", ErrAccessDenied, field.Name)
			}
		} else {
			fv := elem.Field(i)
			d.Value = func() (any, error) {
				return fv.Interface(), nil
			}
		}
		decls = append(decls, d)
	}

	return SourceFunc(func() []Declaration {
		out := make([]Declaration, len(decls))
		copy(out, decls)
		return out
	}), nil
}

// parseTag reads `key,ttl=<duration>`.
func parseTag(name, tag string) (Declaration, error) {
	d := Declaration{Name: name}
	parts := strings.Split(tag, ",")
	d.Key = strings.TrimSpace(parts[0])

	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		k, v, found := strings.Cut(opt, "=")
		if !found {
			return d, fmt.Errorf("malformed tag option %q", opt)
		}
		switch k {
		case "ttl", "exp", "expiration":
			if v == "never" {
				continue
			}
			ttl, err := time.ParseDuration(v)
			if err != nil {
				return d, fmt.Errorf("invalid ttl %q: %w", v, err)
			}
			d.Expiration = ttl
			d.HasExpiration = true
		default:
			return d, fmt.Errorf("unknown tag option %q", k)
		}
	}
	return d, nil
}
