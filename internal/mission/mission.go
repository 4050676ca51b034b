// Package mission reads mission documents written in TOML.
//
// Top-level keys are global parameters. Each table under ProcessConfig
// holds the parameters of one application:
//
//	Community = "alpha"
//	LatOrigin = 43.825
//
//	[ProcessConfig.pDepthWatch]
//	AppTick   = 4
//	max_depth = 40
//
// Parameter and application names are matched case-insensitively.
package mission

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// ErrDuplicateKey is returned when two names in one scope differ only by
// case.
var ErrDuplicateKey = errors.New("name differs only by case from another")

// ProcessConfigKey is the top-level table holding per-application blocks.
const ProcessConfigKey = "ProcessConfig"

var _ moos.MissionReader = (*Mission)(nil)

// Mission is a parsed mission document.
type Mission struct {
	path   string
	global map[string]any
	apps   map[string]map[string]any

	mu      sync.RWMutex
	appName string
}

// Load reads and parses a mission file.
func Load(path string) (*Mission, error) {
	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mission %s: %w", path, err)
	}
	m, err := fromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid mission %s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// Parse parses a mission document held in memory.
func Parse(data string) (*Mission, error) {
	var doc map[string]any
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mission: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc map[string]any) (*Mission, error) {
	m := &Mission{
		global: make(map[string]any),
		apps:   make(map[string]map[string]any),
	}

	for key, value := range doc {
		if strings.EqualFold(key, ProcessConfigKey) {
			blocks, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s must be a table", ProcessConfigKey)
			}
			for app, block := range blocks {
				params, ok := block.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%s.%s must be a table", ProcessConfigKey, app)
				}
				if _, dup := m.apps[strings.ToLower(app)]; dup {
					return nil, fmt.Errorf("%s.%s: %w", ProcessConfigKey, app, ErrDuplicateKey)
				}
				lowered, err := lowerKeys(params)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", ProcessConfigKey, app, err)
				}
				m.apps[strings.ToLower(app)] = lowered
			}
			continue
		}
		// Other tables are not parameters.
		if _, isTable := value.(map[string]any); isTable {
			continue
		}
		if _, dup := m.global[strings.ToLower(key)]; dup {
			return nil, fmt.Errorf("%s: %w", key, ErrDuplicateKey)
		}
		m.global[strings.ToLower(key)] = value
	}

	return m, nil
}

// lowerKeys lowercases parameter names. Names that differ only by case
// are rejected.
func lowerKeys(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		lower := strings.ToLower(k)
		if _, dup := out[lower]; dup {
			return nil, fmt.Errorf("%s: %w", k, ErrDuplicateKey)
		}
		out[lower] = v
	}
	return out, nil
}

// Path returns the file the mission was loaded from.
func (m *Mission) Path() string {
	return m.path
}

// SetAppName selects the application block used by the configuration
// lookups.
func (m *Mission) SetAppName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appName = name
}

// AppName returns the selected application.
func (m *Mission) AppName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appName
}

// HasApp reports whether the mission has a block for name.
func (m *Mission) HasApp(name string) bool {
	_, ok := m.apps[strings.ToLower(name)]
	return ok
}

// Apps returns the application names in sorted order, lowercased.
func (m *Mission) Apps() []string {
	names := make([]string, 0, len(m.apps))
	for name := range m.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetValue looks up a global parameter as text.
func (m *Mission) GetValue(name string) (string, bool) {
	return textOf(m.global, name)
}

// GetDouble looks up a global parameter as a number.
func (m *Mission) GetDouble(name string) (float64, bool) {
	return numberOf(m.global, name)
}

// GetConfigurationParam looks up a parameter of the selected application as
// text.
func (m *Mission) GetConfigurationParam(name string) (string, bool) {
	return textOf(m.apps[strings.ToLower(m.AppName())], name)
}

// GetConfigurationDouble looks up a parameter of the selected application as
// a number.
func (m *Mission) GetConfigurationDouble(name string) (float64, bool) {
	return numberOf(m.apps[strings.ToLower(m.AppName())], name)
}

// AppDouble looks up a numeric parameter of any application.
func (m *Mission) AppDouble(app, name string) (float64, bool) {
	return numberOf(m.apps[strings.ToLower(app)], name)
}

func textOf(params map[string]any, name string) (string, bool) {
	v, ok := params[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(t), true
	}
}

func numberOf(params map[string]any, name string) (float64, bool) {
	v, ok := params[strings.ToLower(name)]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
