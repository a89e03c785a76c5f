package compose

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Service Listing
// =============================================================================

// Service is the part of a compose service definition the deploy tooling reads.
type Service struct {
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	HasBuild      bool   `json:"has_build"`
}

// ParseServices parses a compose document and returns its services sorted
// by name.
func ParseServices(doc string) ([]Service, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeProject(doc)
	if err != nil {
		return nil, err
	}
	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	services := make([]Service, 0, len(project.Services))
	for name, svc := range project.Services {
		services = append(services, Service{
			Name:          name,
			Image:         svc.Image,
			ContainerName: svc.ContainerName,
			HasBuild:      svc.Build != nil,
		})
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].Name < services[j].Name
	})
	return services, nil
}

// ServiceImages maps service name to image for every service that declares one.
func ServiceImages(doc string) (map[string]string, error) {
	services, err := ParseServices(doc)
	if err != nil {
		return nil, err
	}
	images := make(map[string]string, len(services))
	for _, svc := range services {
		if svc.Image != "" {
			images[svc.Name] = svc.Image
		}
	}
	return images, nil
}

// CheckPatched verifies that a rewrite did not break a document that parsed
// before it. Documents that did not parse to begin with are not judged.
func CheckPatched(original, patched string) error {
	if _, err := ParseServices(original); err != nil {
		return nil
	}
	if _, err := ParseServices(patched); err != nil {
		return NewParseError("", err.Error(), ErrPatchBrokeDocument)
	}
	return nil
}

// loadComposeProject loads a compose document using compose-go.
func loadComposeProject(doc string) (*types.Project, error) {
	// Parse YAML into a map first
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(doc), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(doc),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("panelship", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// Remote documents reference files we cannot see
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	return project, nil
}
