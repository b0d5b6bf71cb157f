package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	UniqueID    string `json:"uniq_id,omitempty"`
	Name        string `json:"name,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic    string `json:"stat_t"`
	ValueTemplate string `json:"val_tpl,omitempty"`
	CommandTopic  string `json:"cmd_t"`
	PayloadOpen   string `json:"pl_open"`
	PayloadStop   string `json:"pl_stop"`
	PayloadClose  string `json:"pl_cls"`
	StateOpen     string `json:"stat_open"`
	StateClosed   string `json:"stat_clsd"`
}

// NewHACover describes the curtain as a Home Assistant cover entity driven by
// the bridge's position and command topics.
func NewHACover(bridge *Bridge, name, firmwareVersion string) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    name,
			Name:        name,
			DeviceClass: "curtain",
			Device: haDevice{
				Identifiers:  []string{"curtainctl"},
				Manufacturer: "curtainctl",
				Model:        "light-adaptive curtain",
				Name:         name,
				SWVersion:    firmwareVersion,
			},
		},
		StateTopic:    bridge.topics.PositionStatus,
		ValueTemplate: "{{ value_json.position }}",
		CommandTopic:  bridge.topics.ControlCommand,
		PayloadOpen:   "open",
		PayloadStop:   "stop",
		PayloadClose:  "close",
		StateOpen:     "open",
		StateClosed:   "closed",
	}
}

// PublishHAAutoDiscovery announces the cover on the Home Assistant discovery
// prefix so it shows up without manual configuration.
func PublishHAAutoDiscovery(client paho.Client, discoveryPrefix string, cover haCover) error {
	topic := fmt.Sprintf("%s/cover/curtainctl/%s/config", discoveryPrefix, cover.Name)

	payload, err := json.Marshal(cover)
	if err != nil {
		return err
	}

	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}
