package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes one synthetic run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Model is written as simulation_info.name.
	Model string `yaml:"model"`

	// UUID fixes the run id. If empty the recorder generates one.
	UUID string `yaml:"uuid,omitempty"`

	Constants []VarSpec `yaml:"constants,omitempty"`

	// Driver is the top-level driver.
	Driver DriverSpec `yaml:"driver"`

	// Expect is checked against the Result after the run.
	Expect *Expect `yaml:"expect,omitempty"`
}

// DriverSpec describes one driver and the drivers it invokes.
type DriverSpec struct {
	// ID defaults to Name.
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name"`

	Iterations int `yaml:"iterations"`

	Parameters  []VarSpec  `yaml:"parameters,omitempty"`
	Objectives  []ExprSpec `yaml:"objectives,omitempty"`
	Constraints []ExprSpec `yaml:"constraints,omitempty"`
	Responses   []VarSpec  `yaml:"responses,omitempty"`

	// FailAt lists 1-based iterations recorded with a non-zero error status.
	FailAt []int `yaml:"fail_at,omitempty"`

	// Drivers run to completion inside every iteration of this driver.
	Drivers []DriverSpec `yaml:"drivers,omitempty"`
}

// VarSpec generates the values of one variable. The n-th value (from 0) is
// Start + n*Step, shaped by Kind.
type VarSpec struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"` // real, int, text, bool, array
	Start float64 `yaml:"start,omitempty"`
	Step  float64 `yaml:"step,omitempty"`
}

// ExprSpec generates the real values of one objective or constraint.
type ExprSpec struct {
	Expr  string  `yaml:"expr"`
	Start float64 `yaml:"start,omitempty"`
	Step  float64 `yaml:"step,omitempty"`
}

// Expect holds the counts a run must produce.
type Expect struct {
	Cases   *int           `yaml:"cases,omitempty"`
	Failed  *int           `yaml:"failed,omitempty"`
	Drivers map[string]int `yaml:"drivers,omitempty"` // driver id -> cases
}

// Variable kinds accepted in VarSpec.Kind.
const (
	KindReal  = "real"
	KindInt   = "int"
	KindText  = "text"
	KindBool  = "bool"
	KindArray = "array"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos do not pass silently.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and driver id uniqueness.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	for i, c := range s.Constants {
		if err := validateVar(c); err != nil {
			return fmt.Errorf("constants[%d]: %w", i, err)
		}
	}
	return validateDriver(&s.Driver, "driver", make(map[string]bool))
}

func validateDriver(d *DriverSpec, path string, ids map[string]bool) error {
	if d.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	if d.Iterations < 1 {
		return fmt.Errorf("%s: iterations must be at least 1", path)
	}
	id := d.ID
	if id == "" {
		id = d.Name
	}
	if ids[id] {
		return fmt.Errorf("%s: duplicate driver id %q", path, id)
	}
	ids[id] = true

	for i, v := range d.Parameters {
		if err := validateVar(v); err != nil {
			return fmt.Errorf("%s.parameters[%d]: %w", path, i, err)
		}
	}
	for i, v := range d.Responses {
		if err := validateVar(v); err != nil {
			return fmt.Errorf("%s.responses[%d]: %w", path, i, err)
		}
	}
	for _, n := range d.FailAt {
		if n < 1 || n > d.Iterations {
			return fmt.Errorf("%s: fail_at %d outside 1..%d", path, n, d.Iterations)
		}
	}
	for i := range d.Drivers {
		if err := validateDriver(&d.Drivers[i], fmt.Sprintf("%s.drivers[%d]", path, i), ids); err != nil {
			return err
		}
	}
	return nil
}

func validateVar(v VarSpec) error {
	if v.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch v.Kind {
	case KindReal, KindInt, KindText, KindBool, KindArray:
		return nil
	case "":
		return fmt.Errorf("%s: kind is required", v.Name)
	}
	return fmt.Errorf("%s: unknown kind %q", v.Name, v.Kind)
}
