package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds each flag to its configuration key so flags override the
// config file and the environment.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := flags.Lookup(flagName); flag != nil {
			if err := viper.BindPFlag(configKey, flag); err != nil {
				panic(fmt.Sprintf("binding flag %s: %v", flagName, err))
			}
		}
	}
}

// addFlagValidation runs validator before a flag's value is set.
func addFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateDirList runs ValidateDirExists on each entry of a comma-separated
// slice flag value.
func ValidateDirList(value string) error {
	for _, dir := range strings.Split(value, ",") {
		if err := ValidateDirExists(strings.TrimSpace(dir)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDirExists rejects paths that exist but are not directories.
// Missing directories are allowed: they are skipped at startup.
func ValidateDirExists(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}
