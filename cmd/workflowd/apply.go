package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/workflowd/pkg/api"
	"github.com/cuemby/workflowd/pkg/client"
	"github.com/cuemby/workflowd/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create routes, contacts and processes from a YAML file",
	Long: `Apply workflow resources from a YAML file. Documents are applied in
order; a Process may refer to a Route created earlier in the same file.

Example:
  kind: Route
  metadata:
    name: Invoice
  spec:
    group: billing
    singleton: true
  ---
  kind: Process
  spec:
    route: Invoice
    owner: 10100
    priority: 200
    queue: true
    messages:
      - label: input
        size: 12`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is one document of an apply file
type Resource struct {
	Kind     string           `yaml:"kind"`
	Metadata ResourceMetadata `yaml:"metadata"`
	Spec     ResourceSpec     `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

// ResourceSpec holds the fields of every kind; each kind reads its own
type ResourceSpec struct {
	// Route
	Group     string `yaml:"group,omitempty"`
	Singleton bool   `yaml:"singleton,omitempty"`

	// Contact
	ID    int64  `yaml:"id,omitempty"`
	Login string `yaml:"login,omitempty"`

	// Process
	Route      string             `yaml:"route,omitempty"`
	RouteID    int64              `yaml:"routeId,omitempty"`
	Owner      int64              `yaml:"owner,omitempty"`
	Parent     int64              `yaml:"parent,omitempty"`
	Priority   int                `yaml:"priority,omitempty"`
	State      types.ProcessState `yaml:"state,omitempty"`
	Queue      bool               `yaml:"queue,omitempty"`
	Messages   []MessageSpec      `yaml:"messages,omitempty"`
	Properties map[string]string  `yaml:"properties,omitempty"`
}

type MessageSpec struct {
	UUID  string `yaml:"uuid,omitempty"`
	Label string `yaml:"label"`
	Size  int64  `yaml:"size,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	a := &applier{client: newClient(cmd), routes: make(map[string]int64)}
	for i := range resources {
		if err := a.apply(cmd.Context(), &resources[i]); err != nil {
			return err
		}
	}
	return nil
}

func decodeResources(r io.Reader) ([]Resource, error) {
	var resources []Resource
	dec := yaml.NewDecoder(r)
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			return resources, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if res.Kind == "" {
			continue
		}
		resources = append(resources, res)
	}
}

type applier struct {
	client *client.Client
	routes map[string]int64
}

func (a *applier) apply(ctx context.Context, res *Resource) error {
	switch res.Kind {
	case "Route":
		return a.applyRoute(ctx, res)
	case "Contact":
		return a.applyContact(ctx, res)
	case "Process":
		return a.applyProcess(ctx, res)
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

func (a *applier) applyRoute(ctx context.Context, res *Resource) error {
	name := res.Metadata.Name
	if name == "" {
		return fmt.Errorf("route name is required")
	}
	id, err := a.client.CreateRoute(ctx, api.RouteRequest{Name: name, Group: res.Spec.Group, Singleton: res.Spec.Singleton})
	if err != nil {
		return fmt.Errorf("failed to create route %s: %v", name, err)
	}
	a.routes[name] = id
	fmt.Printf("✓ Route created: %s (ID: %d)\n", name, id)
	return nil
}

func (a *applier) applyContact(ctx context.Context, res *Resource) error {
	login := res.Spec.Login
	if login == "" {
		login = res.Metadata.Name
	}
	id, err := a.client.CreateContact(ctx, api.ContactRequest{ID: res.Spec.ID, Login: login})
	if err != nil {
		return fmt.Errorf("failed to create contact %s: %v", login, err)
	}
	fmt.Printf("✓ Contact created: %s (ID: %d)\n", login, id)
	return nil
}

func (a *applier) applyProcess(ctx context.Context, res *Resource) error {
	spec := res.Spec
	routeID := spec.RouteID
	if spec.Route != "" {
		id, ok := a.routes[spec.Route]
		if !ok {
			return fmt.Errorf("process refers to unknown route %q", spec.Route)
		}
		routeID = id
	}

	pid, err := a.client.CreateProcess(ctx, api.ProcessRequest{
		OwnerID:  spec.Owner,
		RouteID:  routeID,
		ParentID: spec.Parent,
		Priority: spec.Priority,
		State:    spec.State,
	})
	if err != nil {
		return fmt.Errorf("failed to create process: %v", err)
	}

	for _, msg := range spec.Messages {
		if err := a.client.CreateMessage(ctx, pid, api.MessageRequest{UUID: msg.UUID, Label: msg.Label, Size: msg.Size}); err != nil {
			return fmt.Errorf("failed to attach message %q to OGo#%d: %v", msg.Label, pid, err)
		}
	}
	for name, value := range spec.Properties {
		if err := a.client.SetProperty(ctx, pid, name, value); err != nil {
			return fmt.Errorf("failed to set property %s on OGo#%d: %v", name, pid, err)
		}
	}
	fmt.Printf("✓ Process created: OGo#%d\n", pid)

	if spec.Queue {
		reply, err := a.client.Queue(ctx, pid)
		if err != nil {
			return fmt.Errorf("failed to queue OGo#%d: %v", pid, err)
		}
		fmt.Printf("  queue: %d %s\n", reply.Status, reply.Text)
	}
	return nil
}
