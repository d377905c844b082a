package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

var ErrFFprobeDurationInvalid = fmt.Errorf("got no packets from ffprobe, likely a bad file")

type Packet struct {
	CodecType    string `json:"codec_type"`
	StreamIndex  int    `json:"stream_index"`
	PtsTime      string `json:"pts_time"`
	DurationTime string `json:"duration_time"`

	ParsedPtsTime      float64 `json:"-"`
	ParsedDurationTime float64 `json:"-"`
}

type FFprobePacketsOutput struct {
	Packets []Packet `json:"packets"`
}

// ffprobeAudioPackets lists the audio packets of a file. Packets with
// timestamps ffprobe reports as "N/A" are skipped.
func (f *FFmpeg) ffprobeAudioPackets(ctx context.Context, filePath string) ([]Packet, error) {
	cmd := exec.CommandContext(ctx,
		f.ffprobeBinary,
		"-i", filePath,
		"-v", "error",
		"-select_streams", "a",
		"-print_format", "json",
		"-show_entries", "packet=codec_type,stream_index,pts_time,duration_time",
	)
	cmd.WaitDelay = waitDelay

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running ffprobe: %w", err)
	}

	var response FFprobePacketsOutput
	err = json.Unmarshal(output, &response)
	if err != nil {
		return nil, fmt.Errorf("parsing ffprobe json response: %w", err)
	}

	packets := response.Packets[:0]
	for _, packet := range response.Packets {
		pts, err := strconv.ParseFloat(packet.PtsTime, 64)
		if err != nil {
			continue
		}
		duration, err := strconv.ParseFloat(packet.DurationTime, 64)
		if err != nil {
			duration = 0
		}

		packet.ParsedPtsTime = pts
		packet.ParsedDurationTime = duration
		packets = append(packets, packet)
	}

	return packets, nil
}

// FFprobeDurationFromFile gets the duration of the input file in seconds.
//
// Handset recordings (3gp/amr from MediaRecorder) often carry no container
// duration, so the length is taken from packet metadata:
// `max pts time + duration time`. Returns ErrFFprobeDurationInvalid if there
// are no usable packets.
func (f *FFmpeg) FFprobeDurationFromFile(ctx context.Context, filePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.commandTimeout)
	defer cancel()

	packets, err := f.ffprobeAudioPackets(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("getting packets: %w", err)
	}

	if len(packets) == 0 {
		return 0, ErrFFprobeDurationInvalid
	}

	last := packets[0]
	for _, packet := range packets[1:] {
		if packet.ParsedPtsTime > last.ParsedPtsTime {
			last = packet
		}
	}

	return last.ParsedPtsTime + last.ParsedDurationTime, nil
}
