package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Seek(1.5).
		Duration(2).
		Input("in.mp4").
		VideoCodec("libx264").
		VideoProfile("high").
		VideoLevel("3.1").
		PixelFormat("yuv420p").
		FrameRate(30).
		KeyframeInterval(30).
		AudioCodec("aac").
		AudioBitrate("128k").
		AudioSampleRate(48000).
		AudioChannels(2).
		FastStart().
		Output("out.mp4").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-hide_banner",
		"-y",
		"-ss", "1.5", "-t", "2",
		"-i", "in.mp4",
		"-c:v", "libx264",
		"-profile:v", "high",
		"-level:v", "3.1",
		"-pix_fmt", "yuv420p",
		"-r", "30", "-vsync", "cfr",
		"-g", "30",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		"out.mp4",
	}, cmd.Args)
}

func TestCommandBuilder_InputArgsBindToNextInput(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		InputFormat("lavfi").
		Input("color=c=black:s=1280x720:d=1").
		InputFormat("lavfi").
		Input("anullsrc=channel_layout=stereo:sample_rate=48000").
		Shortest().
		Output("card.mp4").
		Build()

	assert.Equal(t, []string{
		"-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=1280x720:d=1",
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
		"-shortest",
		"card.mp4",
	}, cmd.Args)
}

func TestCommandBuilder_Filters(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Input("in.mp4").
		VideoFilter("scale=1280:720:force_original_aspect_ratio=decrease").
		VideoFilter("pad=1280:720:(ow-iw)/2:(oh-ih)/2").
		AudioFilter("loudnorm=I=-16:TP=-1.5:LRA=11").
		Output("out.mp4").
		Build()

	assert.Contains(t, cmd.String(), "-vf scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2")
	assert.Contains(t, cmd.String(), "-af loudnorm=I=-16:TP=-1.5:LRA=11")
}

func TestCommandBuilder_MapAndNoVideo(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Input("video.mp4").
		Input("audio.mp3").
		Map("0:v:0").
		Map("1:a:0").
		Output("muxed.mp4").
		Build()

	assert.Contains(t, cmd.String(), "-map 0:v:0 -map 1:a:0")

	audioOnly := NewCommandBuilder("ffmpeg").
		Input("in.mp4").
		NoVideo().
		Output("out.mp3").
		Build()
	assert.Contains(t, audioOnly.String(), "-vn")
}

func TestParseVersionOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		full    string
		major   int
		minor   int
		wantErr bool
	}{
		{
			name:   "release version",
			output: "ffmpeg version 6.0 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc 12\n",
			full:   "6.0", major: 6, minor: 0,
		},
		{
			name:   "git version",
			output: "ffmpeg version n7.1-2-gabcdef Copyright (c) 2000-2024\n",
			full:   "n7.1-2-gabcdef", major: 7, minor: 1,
		},
		{
			name:   "patch version",
			output: "ffmpeg version 5.1.4 Copyright\n",
			full:   "5.1.4", major: 5, minor: 1,
		},
		{
			name:    "garbage",
			output:  "command not found\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseVersionOutput(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.full, info.full)
			assert.Equal(t, tt.major, info.major)
			assert.Equal(t, tt.minor, info.minor)
		})
	}
}

func TestParseEncoderList(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D libx265              libx265 H.265 / HEVC
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)
`

	encoders := parseEncoderList(output)
	assert.Contains(t, encoders, "libx264")
	assert.Contains(t, encoders, "aac")
	assert.Contains(t, encoders, "libmp3lame")
	assert.NotContains(t, encoders, "Video")
}

func TestBinaryInfo_VerifyEncoders(t *testing.T) {
	ok := &BinaryInfo{Version: "6.0", Encoders: []string{"libx264", "aac", "libmp3lame"}}
	assert.NoError(t, ok.VerifyEncoders())

	missing := &BinaryInfo{Version: "6.0", Encoders: []string{"libx265", "aac"}}
	err := missing.VerifyEncoders()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libx264")
}

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 30.0, parseFramerate("30/1"), 1e-9)
	assert.InDelta(t, 29.97, parseFramerate("30000/1001"), 0.001)
	assert.InDelta(t, 25.0, parseFramerate("25"), 1e-9)
	assert.Zero(t, parseFramerate("0/0"))
	assert.Zero(t, parseFramerate("garbage"))
}

func TestProbeResult_Parsing(t *testing.T) {
	raw := `{
		"format": {
			"filename": "clip.mp4",
			"nb_streams": 2,
			"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
			"duration": "1.234000",
			"size": "102400",
			"bit_rate": "663000"
		},
		"streams": [
			{
				"index": 0,
				"codec_name": "h264",
				"profile": "High",
				"codec_type": "video",
				"width": 1280,
				"height": 720,
				"pix_fmt": "yuv420p",
				"avg_frame_rate": "30/1"
			},
			{
				"index": 1,
				"codec_name": "aac",
				"profile": "LC",
				"codec_type": "audio",
				"sample_rate": "48000",
				"channels": 2,
				"channel_layout": "stereo"
			}
		]
	}`

	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))

	assert.InDelta(t, 1.234, result.Duration(), 1e-9)

	video := result.GetVideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)
	assert.Equal(t, 1280, video.Width)
	assert.InDelta(t, 30.0, video.Framerate(), 1e-9)

	audio := result.GetAudioStream()
	require.NotNil(t, audio)
	assert.Equal(t, "aac", audio.CodecName)
	assert.Equal(t, 2, audio.Channels)
}

func TestProbeResult_MissingStreams(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(`{"format":{},"streams":[]}`), &result))

	assert.Nil(t, result.GetVideoStream())
	assert.Nil(t, result.GetAudioStream())
	assert.Zero(t, result.Duration())
}
