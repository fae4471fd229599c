/*
DESCRIPTION
  metrics.go provides the prometheus metrics exported by speaker protection.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package protection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calibrationAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spkrprot_calibration_attempts_total",
			Help: "Total number of calibration sessions started",
		},
	)

	calibrationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spkrprot_calibration_results_total",
			Help: "Total number of calibration sessions by result",
		},
		[]string{"result"},
	)

	calibrationState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spkrprot_calibration_state",
			Help: "Calibration state (0 not calibrated, 1 in progress, 2 calibrated)",
		},
		[]string{"instance"},
	)

	temperatureRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spkrprot_temperature_retries_total",
			Help: "Total number of out of range temperature readings retried",
		},
	)

	playbackUseCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spkrprot_playback_use_count",
			Help: "Number of active speaker playback users",
		},
		[]string{"instance"},
	)

	diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spkrprot_diagnostics_total",
			Help: "Total number of speaker diagnostics conditions raised by the DSP",
		},
		[]string{"condition"},
	)
)
