package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// ValidationResult describes whether a backend can be used and, if not,
// what the user should do about it.
type ValidationResult struct {
	Backend   ttypes.BackendKind
	Available bool
	Error     error
	Guidance  string
	Details   map[string]string
}

// ValidateRemote probes the synthesis service.
func ValidateRemote(ctx context.Context, prober Prober, serverURL string) *ValidationResult {
	result := &ValidationResult{
		Backend: ttypes.BackendRemote,
		Details: map[string]string{"url": serverURL},
	}

	if err := prober.Probe(ctx); err != nil {
		result.Error = err
		result.Guidance = remoteGuidance(err, serverURL)
		return result
	}

	result.Available = true
	return result
}

// ValidateLocal checks the on-device engine the same way the selector does.
func ValidateLocal(ctx context.Context, engine ttypes.VoiceEngine, cfg SelectorConfig) *ValidationResult {
	result := &ValidationResult{
		Backend: ttypes.BackendLocal,
		Details: map[string]string{},
	}
	if engine == nil {
		result.Error = ErrNoLocalEngine
		result.Guidance = piperInstallGuidance
		return result
	}
	result.Details["engine"] = engine.Name()

	if !engine.Available() {
		result.Error = fmt.Errorf("%s is not available", engine.Name())
		result.Guidance = piperInstallGuidance
		return result
	}

	cfg.Preference = ttypes.BackendLocal
	sel, err := Select(ctx, engine, cfg)
	if err != nil {
		result.Error = err
		result.Guidance = piperVoiceGuidance
		return result
	}

	result.Available = true
	result.Details["voices"] = fmt.Sprint(len(sel.Voices))
	return result
}

func remoteGuidance(err error, serverURL string) string {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return fmt.Sprintf(`The speech service at %s answered with status %d.
Check the service log; the service must answer GET / with a 2xx status.`, serverURL, serverErr.Status)
	}
	return fmt.Sprintf(`The speech service at %s is not reachable.

1. Start the service, e.g.:
   uvicorn server:app --port 3000

2. Or point caption-voice at another address in caption-voice.yml:
   remote:
     url: http://localhost:3000`, serverURL)
}

const piperInstallGuidance = `Piper is not installed or no voice directory is configured.

1. Download Piper from https://github.com/rhasspy/piper/releases and put
   the piper binary on your PATH.

2. Point caption-voice at a directory of voice models in caption-voice.yml:
   local:
     voice_dir: ~/.local/share/piper/voices`

const piperVoiceGuidance = `Piper started but reported no voices.

Download a Ukrainian voice into the voice directory, e.g.:
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/uk/uk_UA/lada/x_low/uk_UA-lada-x_low.onnx
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/uk/uk_UA/lada/x_low/uk_UA-lada-x_low.onnx.json`
