// Package types defines the typed model of a loggy stack configuration file.
package types

// Document is the top-level structure of a stack configuration file.
type Document struct {
	Stack StackSpec `yaml:"stack"`
}

// StackSpec describes one deployment.
type StackSpec struct {
	Name          string            `yaml:"name" validate:"required,pathsegment"`
	Version       string            `yaml:"version" validate:"required"`
	Kibana        KibanaSpec        `yaml:"kibana"`
	Elasticsearch ElasticsearchSpec `yaml:"elasticsearch"`
	Fleet         FleetSpec         `yaml:"fleet"`
	Bootstrap     BootstrapSpec     `yaml:"bootstrap"`
}

// KibanaSpec holds the dashboard settings.
type KibanaSpec struct {
	Port       int    `yaml:"port" validate:"gt=0,lte=65535"`
	ServerName string `yaml:"server_name" validate:"required"`
	URL        string `yaml:"url" validate:"omitempty,url"`
}

// ElasticsearchSpec holds the search-engine settings.
type ElasticsearchSpec struct {
	Host string `yaml:"host" validate:"omitempty,url"`
}

// FleetSpec holds credentials and naming for the Fleet API.
type FleetSpec struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AgentPolicy string `yaml:"agent_policy"`
	Description string `yaml:"description"`
}

// BootstrapSpec tunes the trust bootstrap stage.
type BootstrapSpec struct {
	// Timeout is a Go duration string, e.g. "10m".
	Timeout string `yaml:"timeout" validate:"omitempty,godur"`
}
