package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/obc.go/pkg/comm/mqtt"
	"github.com/robotalks/obc.go/pkg/comm/stream"
	"github.com/robotalks/obc.go/pkg/telemetry"
)

var (
	mqttURL  = "mqtt://localhost:1883/"
	downlink string
)

func init() {
	if val := os.Getenv("OBC_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&downlink, "downlink", downlink, "Print frames of a downlink file instead.")
}

func printFrame(source string, frame []byte) {
	st, err := telemetry.Decode(frame)
	if err != nil {
		log.Printf("%s: bad frame: %v", source, err)
		return
	}
	log.Printf("%s: %s", source, st.String())
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	if downlink != "" {
		f, err := os.Open(downlink)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		frames, err := stream.ReadAll(f)
		for _, frame := range frames {
			printFrame(downlink, frame)
		}
		if err != nil {
			log.Fatalln(err)
		}
		return
	}

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	q.Sub("+/tm/#", func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/tm/status") {
			printFrame(topic, payload)
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	})
	<-(chan struct{})(nil)
}
