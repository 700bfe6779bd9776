// Package homeassistant publishes configured devices to Home
// Assistant over MQTT discovery. Each device gets one retained config
// payload per entity plus a shared state topic, so the host registers
// the ten entities and historizes each independently.
package homeassistant

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/senso4s"
)

// Config holds broker settings.
type Config struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	TLS             bool   `json:"tls"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	DiscoveryPrefix string `json:"discovery_prefix"`
	TopicPrefix     string `json:"topic_prefix"`
}

const connectTimeout = 10 * time.Second

// Publisher maintains the broker connection and pushes discovery and
// state payloads.
type Publisher struct {
	client          mqtt.Client
	discoveryPrefix string
	topicPrefix     string

	mu         sync.Mutex
	configured map[string]bool
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mqtt host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "senso4s"
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(randomClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return &Publisher{
		client:          client,
		discoveryPrefix: cfg.DiscoveryPrefix,
		topicPrefix:     cfg.TopicPrefix,
		configured:      make(map[string]bool),
	}, nil
}

// Publish announces the device's entities (once per address) and
// pushes the current state.
func (p *Publisher) Publish(_ context.Context, entry core.Entry, dev *senso4s.Device) error {
	p.mu.Lock()
	announced := p.configured[entry.Address]
	p.mu.Unlock()

	if !announced {
		if err := p.announce(entry, dev); err != nil {
			return err
		}
		p.mu.Lock()
		p.configured[entry.Address] = true
		p.mu.Unlock()
	}

	identifier := deviceIdentifier(dev)
	if err := p.publish(p.availabilityTopic(identifier), []byte("online"), true); err != nil {
		return err
	}

	state, err := json.Marshal(core.EntityStates(dev.Reading))
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return p.publish(p.stateTopic(identifier), state, false)
}

// Unpublish retracts a removed device: offline availability and empty
// retained config payloads.
func (p *Publisher) Unpublish(entry core.Entry) error {
	identifier := identifierFor(entry.Address)
	if err := p.publish(p.availabilityTopic(identifier), []byte("offline"), true); err != nil {
		return err
	}
	for _, desc := range core.EntityDescriptions {
		if err := p.publish(p.configTopic(identifier, desc.Key), nil, true); err != nil {
			return err
		}
	}
	p.mu.Lock()
	delete(p.configured, entry.Address)
	p.mu.Unlock()
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// entityConfig is the MQTT discovery payload for one entity.
type entityConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	StateTopic        string       `json:"state_topic"`
	AvailabilityTopic string       `json:"availability_topic"`
	ValueTemplate     string       `json:"value_template"`
	DeviceClass       string       `json:"device_class,omitempty"`
	Unit              string       `json:"unit_of_measurement,omitempty"`
	StateClass        string       `json:"state_class,omitempty"`
	Icon              string       `json:"icon,omitempty"`
	EntityCategory    string       `json:"entity_category,omitempty"`
	Device            deviceConfig `json:"device"`
}

type deviceConfig struct {
	Connections   [][]string `json:"connections"`
	Identifiers   []string   `json:"identifiers"`
	Name          string     `json:"name"`
	Manufacturer  string     `json:"manufacturer"`
	Model         string     `json:"model"`
	SuggestedArea string     `json:"suggested_area,omitempty"`
}

func (p *Publisher) announce(entry core.Entry, dev *senso4s.Device) error {
	payloads, err := DiscoveryPayloads(p.discoveryPrefix, p.topicPrefix, entry, dev)
	if err != nil {
		return err
	}
	for topic, payload := range payloads {
		if err := p.publish(topic, payload, true); err != nil {
			return err
		}
	}
	glog.Infof("announced %s with %d entities", entry.Address, len(payloads))
	return nil
}

// DiscoveryPayloads builds the retained discovery config payloads for
// a device, keyed by topic. One payload per entity.
func DiscoveryPayloads(discoveryPrefix, topicPrefix string, entry core.Entry, dev *senso4s.Device) (map[string][]byte, error) {
	identifier := deviceIdentifier(dev)
	device := deviceConfig{
		Connections:   [][]string{{"mac", dev.Address}},
		Identifiers:   []string{"senso4s_" + identifier},
		Name:          dev.FriendlyName(),
		Manufacturer:  dev.Manufacturer,
		Model:         string(dev.Model),
		SuggestedArea: entry.Area,
	}

	payloads := make(map[string][]byte, len(core.EntityDescriptions))
	for _, desc := range core.EntityDescriptions {
		cfg := entityConfig{
			Name:              desc.Name,
			UniqueID:          fmt.Sprintf("%s_%s", identifier, desc.Key),
			StateTopic:        fmt.Sprintf("%s/%s/state", topicPrefix, identifier),
			AvailabilityTopic: fmt.Sprintf("%s/%s/availability", topicPrefix, identifier),
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", desc.Key),
			DeviceClass:       desc.DeviceClass,
			Unit:              desc.Unit,
			StateClass:        desc.StateClass,
			Icon:              desc.Icon,
			Device:            device,
		}
		if desc.Diagnostic {
			cfg.EntityCategory = "diagnostic"
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode discovery config: %w", err)
		}
		topic := fmt.Sprintf("%s/sensor/senso4s_%s/%s/config", discoveryPrefix, identifier, desc.Key)
		payloads[topic] = payload
	}
	return payloads, nil
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	if token := p.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) stateTopic(identifier string) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, identifier)
}

func (p *Publisher) availabilityTopic(identifier string) string {
	return fmt.Sprintf("%s/%s/availability", p.topicPrefix, identifier)
}

func (p *Publisher) configTopic(identifier, key string) string {
	return fmt.Sprintf("%s/sensor/senso4s_%s/%s/config", p.discoveryPrefix, identifier, key)
}

func randomClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "senso4s-" + base64.RawURLEncoding.EncodeToString(buf)
}

// deviceIdentifier tolerates devices built from a bare config entry,
// before any advertisement filled the identifier in.
func deviceIdentifier(dev *senso4s.Device) string {
	if dev.Identifier != "" {
		return dev.Identifier
	}
	return identifierFor(dev.Address)
}

func identifierFor(address string) string {
	return senso4s.IdentifierFromAddress(address)
}
