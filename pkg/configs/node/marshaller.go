package node

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load node config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *NodeConfig, error:
//
//	When loading success, returns `(*NodeConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
//
// It panics when the file is parsed but misconfigured.
func LoadNodeConfig(filepath string) (*NodeConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*NodeConfig, error) {
	var out *NodeConfigMarshall
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = &NodeConfigMarshall{}
	}
	return TrySeal(out), nil
}
