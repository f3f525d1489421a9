// Package catalog resolves truck presets by id. The built-in fleet can be
// replaced or extended through a YAML file referenced by TRUCK_CATALOG.
package catalog

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"loadplan/internal/model"
)

// DefaultTruckID is the preset used when a request names no truck.
const DefaultTruckID = "truck_26t"

// Catalog holds truck presets in a stable listing order.
type Catalog struct {
	trucks map[string]model.TruckSpec
	order  []string
}

// Default returns the built-in presets.
func Default() *Catalog {
	c := &Catalog{trucks: map[string]model.TruckSpec{}}
	for _, t := range []model.TruckSpec{
		{ID: "truck_19t", Name: "19t box truck", Length: 1200, Width: 248, Height: 270, MaxPayload: 19000},
		{ID: "truck_26t", Name: "26t box truck", Length: 1360, Width: 248, Height: 270, MaxPayload: 26000},
		{ID: "truck_40t", Name: "40t semi-trailer", Length: 1360, Width: 248, Height: 270, MaxPayload: 40000},
		{ID: "van_3t5", Name: "3.5t van", Length: 600, Width: 200, Height: 200, MaxPayload: 3500},
	} {
		c.add(t)
	}
	return c
}

type yamlTruck struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Length     float64 `yaml:"length"`
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	MaxPayload float64 `yaml:"maxPayload"`
	FrontMaxKg float64 `yaml:"frontMaxKg"`
	RearMaxKg  float64 `yaml:"rearMaxKg"`
}

// Load returns the built-ins overlaid with the YAML file at path. File
// entries replace built-ins sharing an id and keep their listing position.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read truck catalog: %w", err)
	}
	var file struct {
		Trucks []yamlTruck `yaml:"trucks"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse truck catalog: %w", err)
	}
	c := Default()
	for i, yt := range file.Trucks {
		if yt.ID == "" {
			return nil, fmt.Errorf("truck catalog: trucks[%d]: missing id", i)
		}
		if yt.Length <= 0 || yt.Width <= 0 || yt.Height <= 0 || yt.MaxPayload <= 0 {
			return nil, fmt.Errorf("truck catalog: trucks[%d] (%s): dimensions and maxPayload must be positive", i, yt.ID)
		}
		t := model.TruckSpec{ID: yt.ID, Name: yt.Name, Length: yt.Length, Width: yt.Width, Height: yt.Height, MaxPayload: yt.MaxPayload}
		if yt.FrontMaxKg > 0 && yt.RearMaxKg > 0 {
			t.AxleLimits = &model.AxleLimits{FrontMaxKg: yt.FrontMaxKg, RearMaxKg: yt.RearMaxKg}
		}
		c.add(t)
	}
	return c, nil
}

// FromEnv loads TRUCK_CATALOG when set and falls back to the built-ins.
func FromEnv() (*Catalog, error) {
	if p := os.Getenv("TRUCK_CATALOG"); p != "" {
		return Load(p)
	}
	return Default(), nil
}

func (c *Catalog) add(t model.TruckSpec) {
	if _, ok := c.trucks[t.ID]; !ok {
		c.order = append(c.order, t.ID)
	}
	c.trucks[t.ID] = t
}

// Get looks a preset up by id.
func (c *Catalog) Get(id string) (model.TruckSpec, bool) {
	t, ok := c.trucks[id]
	return t, ok
}

// List returns the presets in listing order.
func (c *Catalog) List() []model.TruckSpec {
	out := make([]model.TruckSpec, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.trucks[id])
	}
	return out
}

// DefaultTruck returns the preset requests fall back to.
func (c *Catalog) DefaultTruck() model.TruckSpec {
	if t, ok := c.trucks[DefaultTruckID]; ok {
		return t
	}
	return c.List()[0]
}
