package main

import (
	"context"
	"flag"
	"log"
	"os"
	"reflect"

	"github.com/robotalks/arduinode/pkg/l1/comm/mqtt"
	"github.com/robotalks/arduinode/pkg/l1/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/arduinode/"
)

func init() {
	if val := os.Getenv("ARDUINODE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Subscribe("#", func(topic string, payload []byte) {
		if id := mqtt.MetaDevice(topic); id != "" {
			if len(payload) == 0 {
				log.Printf("%s: offline", id)
				return
			}
			log.Printf("%s: %s", id, string(payload))
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeID, err)
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			msg.(msgs.SerializableMessage).Serializable().String())
	})
	if err := q.Connect(context.Background()); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
