package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const pipelineTemplate = `# signal-arbiter pipeline configuration

[quant]
dispersion_threshold = 0.50
call_timeout = "10s"

[policy]
veto_floor = 0.80
call_timeout = "30s"

[debate]
# Opening round plus up to this many rebuttals. Total rounds never exceed 3.
max_rebuttal_rounds = 2
call_timeout = "45s"

[panel]
size = 10
member_timeout = "30s"

[arbiter]
# Position-size cap as a fraction of portfolio value.
max_position = 0.12

[risk]
min_cash_reserve = 0.10
correlation_threshold = 0.85
sector_concentration_limit = 0.30
max_open_positions = 12

[pretrade]
min_notional = 0.005
max_notional = 0.12
price_band_percent = 5.0
max_open_orders = 20

[notifications]
enabled = false

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

const credentialsTemplate = `# signal-arbiter credentials
# The primary source serves the bull side and the judge; the secondary
# serves the bear side and the judge fallback. Panel members use primary.

[primary]
api_key = ""
base_url = ""
model = "gpt-4o"

[secondary]
api_key = ""
base_url = ""
model = "gpt-4o-mini"

[quant]
url = ""
api_key = ""

[portfolio]
url = ""
api_key = ""
`

func createTemplatePipelineConfig(configDir string) error {
	return writeTemplate(configDir, "pipeline.toml", pipelineTemplate)
}

func createTemplateCredentials(configDir string) error {
	return writeTemplate(configDir, "credentials.toml", credentialsTemplate)
}

func writeTemplate(configDir, name, content string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
