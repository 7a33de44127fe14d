package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Append-only version log keyed by entity and version number
			CREATE TABLE entities (
				kind VARCHAR(32) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				head BIGINT NOT NULL,
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (kind, entity_id)
			);

			CREATE TABLE versions (
				kind VARCHAR(32) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				number BIGINT NOT NULL CHECK (number > 0),
				author VARCHAR(255) NOT NULL DEFAULT '',
				note TEXT NOT NULL DEFAULT '',
				restored_of BIGINT NOT NULL DEFAULT 0,
				snapshot JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (kind, entity_id, number)
			);

			CREATE INDEX idx_entities_kind ON entities(kind) WHERE deleted = FALSE;
		`,
		2: `
			-- Alerts and execution runs keyed by entity id and timestamp
			CREATE TABLE alerts (
				id VARCHAR(64) PRIMARY KEY,
				integration_id VARCHAR(255) NOT NULL,
				severity VARCHAR(16) NOT NULL,
				status VARCHAR(16) NOT NULL,
				data JSONB NOT NULL,
				last_seen TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_alerts_integration_last_seen ON alerts(integration_id, last_seen DESC);
			CREATE INDEX idx_alerts_status ON alerts(status);

			CREATE TABLE execution_runs (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL,
				data JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_runs_workflow_started ON execution_runs(workflow_id, started_at DESC);
		`,
		3: `
			-- Write counter for optimistic alert updates
			ALTER TABLE alerts ADD COLUMN generation BIGINT NOT NULL DEFAULT 0;
		`,
	}
}
