package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig         string
	flagInput          string
	flagBitrate        int
	flagWidth          int
	flagHeight         int
	flagFrameRate      int
	flagSurface        bool
	flagRecord         string
	flagListen         string
	flagRTP            string
	flagSDP            string
	flagLogLevel       string
	flagHorizontalFlip bool
	flagVerticalFlip   bool
	flagList           bool
	flagHelp           bool
	flagVersion        bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "Configuration file")
	flag.StringVarP(&flagInput, "input", "i", "sim:0", "Camera locator")
	flag.IntVarP(&flagBitrate, "bitrate", "b", 256, "Video bitrate, in KiB")
	flag.IntVarP(&flagWidth, "width", "x", 640, "Video width")
	flag.IntVarP(&flagHeight, "height", "y", 480, "Video height")
	flag.IntVarP(&flagFrameRate, "framerate", "r", 30, "Frames per second")
	flag.BoolVarP(&flagSurface, "surface", "s", false, "Encode directly from a GPU surface")
	flag.StringVarP(&flagRecord, "record", "o", "", "Record to an MP4 file")
	flag.StringVarP(&flagListen, "listen", "l", "", "Serve live video over a websocket")
	flag.StringVarP(&flagRTP, "rtp", "u", "", "Send live video as RTP to a UDP address")
	flag.StringVarP(&flagSDP, "sdp", "", "", "Write the RTP session description to a file")
	flag.BoolVarP(&flagHorizontalFlip, "hflip", "", false, "Flip horizontally")
	flag.BoolVarP(&flagVerticalFlip, "vflip", "", false, "Flip vertically")
	flag.BoolVarP(&flagList, "list", "L", false, "List cameras and exit")
	flag.StringVarP(&flagLogLevel, "log-level", "", "", "Log level directives")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Camera capture and hardware encoding for connected devices

Usage: alohacam [OPTION]...

Camera:
  -i, --input=LOCATOR    Camera to open, as DRIVER:ID[/FACING] (default: sim:0)
                           Drivers: sim (simulated), v4l2 (/dev/videoN)
  -x, --width=NUM        Set video width (default: 640)
  -y, --height=NUM       Set video height (default: 480)
  -r, --framerate=NUM    Set frames per second (default: 30)
      --hflip            Flip video horizontally (v4l2)
      --vflip            Flip video vertically (v4l2)
  -L, --list             List cameras and their formats, then exit

Encoder:
  -b, --bitrate=NUM      Set a fixed video bitrate, in KiB (default: 256)
  -s, --surface          Encode directly from a GPU surface

Output:
  -o, --record=FILE      Record H.264 video to an MP4 file
  -l, --listen=ADDR      Serve live video to websocket viewers at ADDR/ws
  -u, --rtp=HOST:PORT    Send H.264 video as RTP (packetization-mode=1) over UDP
      --sdp=FILE         Write a session description for --rtp receivers

Miscellaneous:
  -c, --config=FILE      Read settings from a JSON file; flags take precedence
      --log-level=LEVELS
                         Set log levels, e.g. warn,codec=debug (default: $LOGLEVEL)
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//        _         _
	//   __ _| |  ___  | |__    __ _  ___  __ _  _ __ ___
	//  / _` | | / _ \ | '_ \  / _` |/ __|/ _` || '_ ` _ \
	// | (_| | || (_) || | | || (_| | (__| (_| || | | | | |
	//  \__,_|_| \___/ |_| |_| \__,_|\___|\__,_||_| |_| |_|

	// Line 1
	r.Printf("       ")
	y.Printf("_ ")
	b.Printf("       ")
	y.Printf("_      ")
	r.Printf("       ")
	y.Printf("     ")
	b.Printf("      ")
	y.Println("          ")

	// Line 2
	r.Printf("  __ _")
	y.Printf("| |")
	b.Printf("  ___  ")
	y.Printf("| |__  ")
	r.Printf("  __ _ ")
	y.Printf(" ___ ")
	b.Printf(" __ _ ")
	y.Println(" _ __ ___  ")

	// Line 3
	r.Printf(" / _` ")
	y.Printf("| |")
	b.Printf(" / _ \\ ")
	y.Printf("| '_ \\ ")
	r.Printf(" / _` |")
	y.Printf("/ __|")
	b.Printf("/ _` |")
	y.Println("| '_ ` _ \\ ")

	// Line 4
	r.Printf("| (_| ")
	y.Printf("| |")
	b.Printf("| (_) |")
	y.Printf("| | | |")
	r.Printf("| (_| |")
	y.Printf(" (__")
	b.Printf("| (_| |")
	y.Println("| | | | | |")

	// Line 5
	r.Printf(" \\__,_")
	y.Printf("|_|")
	b.Printf(" \\___/ ")
	y.Printf("|_| |_|")
	r.Printf(" \\__,_|")
	y.Printf("\\___|")
	b.Printf("\\__,_|")
	y.Println("|_| |_| |_|")

	fmt.Println(helpString)
}
