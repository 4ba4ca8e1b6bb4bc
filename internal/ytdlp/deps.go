package ytdlp

import (
	"fmt"
	"os/exec"
)

type DependencyReport struct {
	YTDLPFound  bool   `json:"ytDlp"`
	YTDLPPath   string `json:"ytDlpPath,omitempty"`
	FFmpegFound bool   `json:"ffmpeg"`
	FFmpegPath  string `json:"ffmpegPath,omitempty"`
}

// DependencyStatus looks up the tool binary and ffmpeg on PATH.
func DependencyStatus(binary string) DependencyReport {
	if binary == "" {
		binary = DefaultBinary
	}
	report := DependencyReport{}
	if path, err := exec.LookPath(binary); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

func CheckDependencies(binary string) error {
	report := DependencyStatus(binary)
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", binary)
	}
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required for audio extraction and remuxing and was not found on PATH")
	}
	return nil
}
