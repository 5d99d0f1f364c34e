package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Unmarshal(t *testing.T) {
	raw := `{"type":"startTransaction","stationId":"SIM-00001","connectorId":2,"idTag":"TAG-1"}`

	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(raw), &cmd))
	assert.Equal(t, CommandStartTransaction, cmd.Type)
	assert.Equal(t, "SIM-00001", cmd.StationID)
	assert.Equal(t, 2, cmd.ConnectorID)
	assert.Equal(t, "TAG-1", cmd.IdTag)
	assert.NoError(t, cmd.Validate())
}

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr string
	}{
		{
			name: "connect",
			cmd:  Command{Type: CommandConnect, StationID: "SIM-00001"},
		},
		{
			name: "disconnect",
			cmd:  Command{Type: CommandDisconnect, StationID: "SIM-00001"},
		},
		{
			name: "stopTransaction",
			cmd:  Command{Type: CommandStopTransaction, StationID: "SIM-00001"},
		},
		{
			name: "statusNotification",
			cmd:  Command{Type: CommandStatusNotification, StationID: "SIM-00001", ConnectorID: 1, Status: "Faulted"},
		},
		{
			name:    "missing stationId",
			cmd:     Command{Type: CommandConnect},
			wantErr: "missing stationId",
		},
		{
			name:    "startTransaction without idTag",
			cmd:     Command{Type: CommandStartTransaction, StationID: "SIM-00001"},
			wantErr: "missing idTag",
		},
		{
			name:    "statusNotification without status",
			cmd:     Command{Type: CommandStatusNotification, StationID: "SIM-00001", ConnectorID: 1},
			wantErr: "missing status",
		},
		{
			name:    "unknown type",
			cmd:     Command{Type: "reboot", StationID: "SIM-00001"},
			wantErr: "unknown command type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
