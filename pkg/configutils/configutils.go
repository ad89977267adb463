package configutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// ResolveAndMergeFile reads the configuration file provided and merges it
// into the supplied viper. The file type is inferred from the extension.
func ResolveAndMergeFile(v *viper.Viper, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return errors.New("configuration file has no extension")
	}

	extSupported := false
	for _, e := range viper.SupportedExts {
		if ext[1:] == e { // compare ignoring the leading dot
			extSupported = true
			break
		}
	}
	if !extSupported {
		return fmt.Errorf("unsupported configuration file extension: %s", ext)
	}

	v.SetConfigType(ext[1:])
	v.SetConfigFile(filePath)

	return v.ReadInConfig()
}

// BindEnvsRecursive walks a config struct and binds every mapstructure-tagged
// field to its environment variable so that viper.Unmarshal picks up values
// set only in the environment.
func BindEnvsRecursive(v *viper.Viper, iface interface{}, path string) error {
	val := reflect.ValueOf(iface).Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == ",squash" {
			continue
		}

		fullPath := tag
		if path != "" {
			fullPath = path + "." + tag
		}

		field := val.Field(i)
		if field.Kind() == reflect.Ptr {
			if field.IsNil() && field.Type().Elem().Kind() == reflect.Struct {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}

		if field.Kind() == reflect.Struct {
			if err := BindEnvsRecursive(v, field.Addr().Interface(), fullPath); err != nil {
				return err
			}
		}

		if err := v.BindEnv(fullPath); err != nil {
			return fmt.Errorf("failed to bind environment variable: %w", err)
		}
	}

	return nil
}
