/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions configures an MQTT sink.  The field names follow
// mosquitto_pub's flags.
type MQTTOptions struct {
	Broker    string        `yaml:"broker" json:"broker"`
	Port      int           `yaml:"port" json:"port"`
	ClientID  string        `yaml:"clientId" json:"clientId"`
	Username  string        `yaml:"username" json:"username"`
	Password  string        `yaml:"password" json:"password"`
	KeepAlive time.Duration `yaml:"keepAlive" json:"keepAlive"`
	Topic     string        `yaml:"topic" json:"topic"`
	QoS       int           `yaml:"qos" json:"qos"`
	Retain    bool          `yaml:"retain" json:"retain"`
	Insecure  bool          `yaml:"insecure" json:"insecure"`

	// Timeout bounds connecting and each publish.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Quiesce is how long Close waits for pending work.
	Quiesce time.Duration `yaml:"quiesce" json:"quiesce"`
}

// DefaultMQTTOptions are the defaults that NewMQTT fills in.
var DefaultMQTTOptions = MQTTOptions{
	Broker:    "tcp://localhost",
	Port:      1883,
	KeepAlive: 10 * time.Second,
	Topic:     "natives/out",
	Timeout:   5 * time.Second,
	Quiesce:   100 * time.Millisecond,
}

func (o MQTTOptions) withDefaults() MQTTOptions {
	d := DefaultMQTTOptions
	if o.Broker == "" {
		o.Broker = d.Broker
	}
	if o.Port == 0 {
		o.Port = d.Port
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = d.KeepAlive
	}
	if o.Topic == "" {
		o.Topic = d.Topic
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.Quiesce == 0 {
		o.Quiesce = d.Quiesce
	}
	return o
}

// clientOptions translates o into Paho's options.
func (o MQTTOptions) clientOptions(logger zerolog.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s:%d", o.Broker, o.Port))
	opts.SetClientID(o.ClientID)
	opts.SetKeepAlive(o.KeepAlive)
	opts.SetConnectTimeout(o.Timeout)
	opts.Username = o.Username
	opts.Password = o.Password
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.SetTLSConfig(&tls.Config{
		InsecureSkipVerify: o.Insecure,
	})
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}
	return opts
}

// MQTT is a Sink that publishes each message as JSON to one topic.
type MQTT struct {
	Options MQTTOptions
	Client  mqtt.Client

	logger zerolog.Logger
}

// NewMQTT makes an MQTT sink.  Connect connects.
func NewMQTT(opts MQTTOptions, logger zerolog.Logger) *MQTT {
	opts = opts.withDefaults()
	logger = logger.With().Str("component", "sio.mqtt").Str("topic", opts.Topic).Logger()
	return &MQTT{
		Options: opts,
		Client:  mqtt.NewClient(opts.clientOptions(logger)),
		logger:  logger,
	}
}

// Connect connects to the broker.
func (c *MQTT) Connect(ctx context.Context) error {
	c.logger.Debug().Str("broker", c.Options.Broker).Int("port", c.Options.Port).Msg("connecting")
	return c.wait(ctx, c.Client.Connect())
}

func (c *MQTT) wait(ctx context.Context, t mqtt.Token) error {
	timeout := c.Options.Timeout
	if deadline, have := ctx.Deadline(); have {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("MQTT operation timed out after %v", timeout)
	}
	return t.Error()
}

func (c *MQTT) Emit(ctx context.Context, msg interface{}) error {
	js, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	t := c.Client.Publish(c.Options.Topic, byte(c.Options.QoS), c.Options.Retain, js)
	return c.wait(ctx, t)
}

// Close disconnects after waiting up to Options.Quiesce.
func (c *MQTT) Close() error {
	if c.Client.IsConnected() {
		c.Client.Disconnect(uint(c.Options.Quiesce / time.Millisecond))
	}
	return nil
}
