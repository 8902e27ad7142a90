package db

const schemaSQL = `
-- ==========================================================================
-- KNOWN DEVICES (label memory across reconnects)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS known_devices (
  user_id TEXT NOT NULL,
  device_id TEXT NOT NULL,
  device_name TEXT NOT NULL,
  device_type TEXT NOT NULL DEFAULT '',
  first_seen TEXT NOT NULL,
  last_seen TEXT NOT NULL,
  PRIMARY KEY (user_id, device_id)
);

CREATE INDEX IF NOT EXISTS idx_known_devices_last_seen ON known_devices(user_id, last_seen DESC);

-- ==========================================================================
-- HUB EVENTS (coordination audit log, no track data)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS hub_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  user_id TEXT NOT NULL,
  connection_id TEXT,
  device_id TEXT,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_hub_events_timestamp ON hub_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_hub_events_user ON hub_events(user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_hub_events_type ON hub_events(type);
`
