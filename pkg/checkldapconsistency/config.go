package checkldapconsistency

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

const MaxLineSize = 1024 * 1024 // limit max line length to 1MB

// DefaultConfig contains the builtin defaults for all sections.
var DefaultConfig = map[string]ConfigData{
	"ldap": {
		"binddn":   "cn=Directory Manager",
		"ldaps":    "false",
		"insecure": "false",
		"port":     "0",
		"timeout":  "10s",
	},
	"checks": {
		"max queries": "16",
	},
	"log": {
		"file name": "stderr",
		"level":     "error",
	},
}

// DefaultConfigPaths are tried in order when no config file is given.
var DefaultConfigPaths = []string{
	"./check_ldap_consistency.ini",
	"/etc/check_ldap_consistency/check_ldap_consistency.ini",
}

// Config contains the merged config over all config files.
type Config struct {
	sections map[string]*ConfigSection
}

func NewConfig() *Config {
	conf := &Config{
		sections: make(map[string]*ConfigSection),
	}
	for name, data := range DefaultConfig {
		conf.Section(name).MergeData(data)
	}

	return conf
}

// ReadINI opens the config file and reads all key value pairs, separated
// through = and commented out with ";" and "#".
func (config *Config) ReadINI(iniPath string) error {
	log.Debugf("reading config: %s", iniPath)
	file, err := os.Open(iniPath)
	if err != nil {
		return fmt.Errorf("%s: %s", iniPath, err.Error())
	}
	defer file.Close()

	err = config.ParseINI(file, iniPath)
	if err != nil {
		return fmt.Errorf("config error in file %s: %s", iniPath, err.Error())
	}

	return nil
}

// ParseINI reads ini style configuration and updates the config object.
// It returns the first error found but still reads the whole input.
func (config *Config) ParseINI(file io.Reader, iniPath string) error {
	parseErrors := []error{}
	var currentSection *ConfigSection
	lineNr := 0

	scanner := bufio.NewScanner(file)
	buffer := make([]byte, 0, MaxLineSize)
	scanner.Buffer(buffer, MaxLineSize)
	for scanner.Scan() {
		lineNr++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}

		// start of a new section
		if line[0] == '[' {
			currentBlock := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			currentSection = config.Section(currentBlock)

			continue
		}

		if currentSection == nil {
			parseErrors = append(parseErrors, fmt.Errorf("parse error in %s:%d: found key=value pair outside of ini block", iniPath, lineNr))

			continue
		}

		// parse key and value
		val := strings.SplitN(line, "=", 2)
		if len(val) < 2 {
			parseErrors = append(parseErrors, fmt.Errorf("parse error in %s:%d: found key without '='", iniPath, lineNr))

			continue
		}
		val[0] = strings.TrimSpace(val[0])
		val[1] = strings.TrimSpace(val[1])

		useAppend := false
		if strings.HasSuffix(val[0], "+") {
			val[0] = strings.TrimSpace(strings.TrimSuffix(val[0], "+"))
			useAppend = true
		}

		value, err := config.parseString(val[1])
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("config error in %s:%d: %s", iniPath, lineNr, err.Error()))

			continue
		}

		if useAppend {
			cur, ok := currentSection.GetRaw(val[0])
			if ok {
				value = cur + value
			}
		}

		currentSection.Set(val[0], value)
	}

	if len(parseErrors) > 0 {
		return parseErrors[0]
	}

	return nil
}

// Section returns section by name or creates an empty one.
func (config *Config) Section(name string) *ConfigSection {
	if section, ok := config.sections[name]; ok {
		return section
	}

	section := NewConfigSection(name)
	config.sections[name] = section

	return section
}

// parseString parses a string value from a config section.
func (config *Config) parseString(val string) (string, error) {
	val = strings.TrimSpace(val)

	switch {
	case strings.HasPrefix(val, `"`):
		count := strings.Count(val, `"`)
		switch count {
		case 1:
			return "", fmt.Errorf("unclosed quotes")
		case 2:
			if strings.HasSuffix(val, `"`) {
				val = strings.TrimPrefix(val, `"`)
				val = strings.TrimSuffix(val, `"`)
			}
		}

	case strings.HasPrefix(val, `'`):
		count := strings.Count(val, `'`)
		switch count {
		case 1:
			return "", fmt.Errorf("unclosed quotes")
		case 2:
			if strings.HasSuffix(val, `'`) {
				val = strings.TrimPrefix(val, `'`)
				val = strings.TrimSuffix(val, `'`)
			}
		}
	}

	return val, nil
}

// ConfigSection contains a single config section.
type ConfigSection struct {
	name string
	data ConfigData
	keys []string
}

// NewConfigSection creates a new ConfigSection.
func NewConfigSection(name string) *ConfigSection {
	section := &ConfigSection{
		name: name,
		data: make(ConfigData),
		keys: make([]string, 0),
	}

	return section
}

// Set sets a single key/value pair. Existing keys will be overwritten.
func (cs *ConfigSection) Set(key, value string) {
	if !cs.HasKey(key) {
		cs.keys = append(cs.keys, key)
	}
	cs.data[key] = value
}

// HasKey returns true if the given key exists in this config section.
func (cs *ConfigSection) HasKey(key string) (ok bool) {
	_, ok = cs.data[key]

	return ok
}

// Keys returns the list of config keys.
func (cs *ConfigSection) Keys() []string {
	return cs.keys
}

// GetRaw returns the unparsed value, it returns the value if found and sets ok to true.
func (cs *ConfigSection) GetRaw(key string) (val string, ok bool) {
	val, ok = cs.data[key]

	return val, ok
}

// GetString parses a string from the config section, it returns the value if
// found and sets ok to true.
func (cs *ConfigSection) GetString(key string) (val string, ok bool) {
	return cs.GetRaw(key)
}

// GetInt parses an int64 from the config section, it returns the value if
// found and sets ok to true. If the value is found but cannot be parsed,
// error is set.
func (cs *ConfigSection) GetInt(key string) (num int64, ok bool, err error) {
	val, ok := cs.GetString(key)
	if !ok {
		return 0, false, nil
	}
	num, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("ParseInt: %s", err.Error())
	}

	return num, true, nil
}

// GetBool parses a bool from the config section, it returns the value if
// found and sets ok to true. If the value is found but cannot be parsed,
// error is set.
func (cs *ConfigSection) GetBool(key string) (val, ok bool, err error) {
	raw, ok := cs.GetString(key)
	if !ok {
		return false, false, nil
	}
	val, err = parseBool(raw)
	if err != nil {
		return false, true, fmt.Errorf("parseBool %s: %s", raw, err.Error())
	}

	return val, ok, nil
}

// GetDuration parses a duration value in seconds from the config section, it
// returns the value if found and sets ok to true. If the value is found but
// cannot be parsed, error is set.
func (cs *ConfigSection) GetDuration(key string) (val float64, ok bool, err error) {
	raw, ok := cs.GetString(key)
	if !ok {
		return 0, false, nil
	}
	num, err := expandDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("GetDuration: %s", err.Error())
	}

	return num, true, nil
}

// ConfigData contains the keys of a section.
type ConfigData map[string]string

// MergeData merges defaults into a section (existing keys win).
func (cs *ConfigSection) MergeData(defaults ConfigData) {
	for key, val := range defaults {
		if !cs.HasKey(key) {
			cs.Set(key, val)
		}
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "enable", "enabled", "true", "yes", "on":
		return true, nil
	case "0", "disable", "disabled", "false", "no", "off":
		return false, nil
	}

	return false, fmt.Errorf("cannot parse boolean value from %v", raw)
}

// expandDuration expands a duration string into seconds.
func expandDuration(val string) (res float64, err error) {
	var num float64

	factors := []struct {
		suffix string
		factor float64
	}{
		{"ms", 0.001},
		{"s", 1},
		{"m", 60},
		{"h", 3600},
		{"d", 86400},
	}

	for _, f := range factors {
		if strings.HasSuffix(val, f.suffix) {
			num, err = strconv.ParseFloat(strings.TrimSuffix(val, f.suffix), 64)
			res = num * f.factor
			if err != nil {
				return 0, fmt.Errorf("expandDuration: %s", err.Error())
			}

			return res, nil
		}
	}
	if isDigitsOnly(val) {
		res, err = strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("expandDuration: %s", err.Error())
		}

		return res, nil
	}

	return 0, fmt.Errorf("expandDuration: cannot parse duration, unknown format in %s", val)
}

// isDigitsOnly returns true if the string only contains numbers.
func isDigitsOnly(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}

	return true
}
