// Package main provides the operator CLI for the yukebox server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("roomctl", "yukebox room control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8090").Envar("YUKEBOX_SERVER").String()

	// rooms command
	roomsCmd = app.Command("rooms", "List rooms")

	// status command
	statusCmd  = app.Command("status", "Get room status")
	statusRoom = statusCmd.Arg("room-id", "Room ID").Required().String()

	// play command
	playCmd  = app.Command("play", "Play a track immediately")
	playRoom = playCmd.Arg("room-id", "Room ID").Required().String()
	playURL  = playCmd.Arg("url", "Track URL or search query").Required().String()

	// stop command
	stopCmd  = app.Command("stop", "Stop playback")
	stopRoom = stopCmd.Arg("room-id", "Room ID").Required().String()

	// pause command
	pauseCmd  = app.Command("pause", "Toggle pause")
	pauseRoom = pauseCmd.Arg("room-id", "Room ID").Required().String()

	// volume command
	volumeCmd   = app.Command("volume", "Set volume")
	volumeRoom  = volumeCmd.Arg("room-id", "Room ID").Required().String()
	volumeLevel = volumeCmd.Arg("level", "Volume 0-100").Required().Int()

	// queue command
	queueCmd  = app.Command("queue", "List the room queue")
	queueRoom = queueCmd.Arg("room-id", "Room ID").Required().String()

	// clear command
	clearCmd  = app.Command("clear", "Clear pending queue items")
	clearRoom = clearCmd.Arg("room-id", "Room ID").Required().String()

	// schedules command
	schedulesCmd  = app.Command("schedules", "List room schedules")
	schedulesRoom = schedulesCmd.Arg("room-id", "Room ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var err error
	switch command {
	case roomsCmd.FullCommand():
		err = get("/api/rooms")
	case statusCmd.FullCommand():
		err = get("/api/rooms/" + *statusRoom + "/status")
	case playCmd.FullCommand():
		err = post("/api/rooms/"+*playRoom+"/play", map[string]any{"url": *playURL})
	case stopCmd.FullCommand():
		err = post("/api/rooms/"+*stopRoom+"/stop", nil)
	case pauseCmd.FullCommand():
		err = post("/api/rooms/"+*pauseRoom+"/pause", nil)
	case volumeCmd.FullCommand():
		err = post("/api/rooms/"+*volumeRoom+"/volume", map[string]any{"volume": *volumeLevel})
	case queueCmd.FullCommand():
		err = get("/api/rooms/" + *queueRoom + "/queue")
	case clearCmd.FullCommand():
		err = del("/api/rooms/" + *clearRoom + "/queue")
	case schedulesCmd.FullCommand():
		err = get("/api/rooms/" + *schedulesRoom + "/schedules")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func get(path string) error {
	resp, err := http.Get(*server + path)
	if err != nil {
		return err
	}
	return render(resp)
}

func post(path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := http.Post(*server+path, "application/json", &buf)
	if err != nil {
		return err
	}
	return render(resp)
}

func del(path string) error {
	req, err := http.NewRequest(http.MethodDelete, *server+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return render(resp)
}

func render(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Println(resp.Status)
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
