package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldFloat
	// FieldArgs is a command line split with shell quoting rules.
	FieldArgs
)

// Field defines a REPL input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Command defines a REPL command binding.
type Command struct {
	Service string
	Action  string
	Summary string
	Fields  []Field
}

// Key returns the registry key of the command.
func (c Command) Key() string {
	return Key(c.Service, c.Action)
}

// Key joins a service and action into a registry key.
func Key(service, action string) string {
	return strings.ToLower(service) + " " + strings.ToLower(action)
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// ParseParams reads key=value tokens.
func ParseParams(tokens []string) (Params, error) {
	params := Params{}
	for _, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	return params, nil
}

// Validate checks the typed fields of cmd that are present in params.
func Validate(cmd Command, params Params) error {
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		if value == "" {
			if field.Required {
				return fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		switch field.Type {
		case FieldFloat:
			if _, err := ParseFloat(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		case FieldArgs:
			if _, err := ParseArgs(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func ParseFloat(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

// FloatOr parses value, returning def when it is empty.
func FloatOr(value string, def float64) (float64, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	return ParseFloat(value)
}

func ParseArgs(value string) ([]string, error) {
	return shlex.Split(value)
}
