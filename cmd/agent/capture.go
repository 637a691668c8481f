package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"AttendGate/internal/face"
	"AttendGate/internal/model"
)

type captureOptions struct {
	FacePath  string
	Direction string
	UserID    string
	Lat       float64
	Lng       float64
	SSID      string
	BSSID     string
}

var captureOpts captureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Extract an embedding from detected face geometry and submit an attendance attempt",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd, captureOpts)
	},
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureOpts.FacePath, "face", "", "JSON file with detected face geometry")
	f.StringVar(&captureOpts.Direction, "type", string(model.DirectionCheckIn), "check_in or check_out")
	f.StringVar(&captureOpts.UserID, "user", "", "user id (default: $AGENT_USER_ID)")
	f.Float64Var(&captureOpts.Lat, "lat", 0, "device latitude")
	f.Float64Var(&captureOpts.Lng, "lng", 0, "device longitude")
	f.StringVar(&captureOpts.SSID, "ssid", "", "connected Wi-Fi SSID")
	f.StringVar(&captureOpts.BSSID, "bssid", "", "connected Wi-Fi BSSID")
	_ = captureCmd.MarkFlagRequired("face")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, opts captureOptions) error {
	raw, err := os.ReadFile(opts.FacePath)
	if err != nil {
		return fmt.Errorf("failed to read face geometry: %w", err)
	}
	var geom model.FaceGeometry
	if err := json.Unmarshal(raw, &geom); err != nil {
		return fmt.Errorf("invalid face geometry: %w", err)
	}

	// 质量不足时让用户重新采集，不提交
	extraction := face.Extract(geom)
	if extraction.ZeroNorm || extraction.Quality < cfg.MinQuality {
		return fmt.Errorf("face capture quality %.2f is below %.2f, please capture again", extraction.Quality, cfg.MinQuality)
	}

	userID := opts.UserID
	if userID == "" {
		userID = cfg.UserID
	}
	now := time.Now().UTC()
	attempt := model.AttendanceAttempt{
		UserID:          userID,
		Direction:       model.Direction(opts.Direction),
		Embedding:       extraction.Vector,
		Location:        model.GeoPoint{Lat: opts.Lat, Lng: opts.Lng},
		Network:         model.NetworkInfo{SSID: opts.SSID, BSSID: opts.BSSID},
		ClientTimestamp: &now,
	}

	outcome, queued, err := queue.SubmitOrEnqueue(cmd.Context(), attempt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case queued != nil:
		fmt.Fprintf(out, "Offline: attempt %s queued, it will be submitted when the server is reachable.\n", queued.AttemptID)
	case outcome.IsAdmitted():
		fmt.Fprintf(out, "Admitted: %s recorded as %s at %s (id %s)\n",
			opts.Direction, outcome.Admission.Status,
			outcome.Admission.Time.Local().Format("2006-01-02 15:04:05"), outcome.Admission.AttendanceID)
	default:
		fmt.Fprintf(out, "Rejected: %s (%s)\n", outcome.Message(), outcome.Reason.Code)
	}
	return nil
}
