package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				store_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_store_id ON workflows(store_id);
			CREATE INDEX idx_workflows_trigger ON workflows(store_id, status, trigger_type);

			CREATE TABLE enrollments (
				id UUID PRIMARY KEY,
				store_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				customer_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'exited')),
				current_step INT NOT NULL DEFAULT 0,
				next_step_at TIMESTAMP WITH TIME ZONE,
				last_step_at TIMESTAMP WITH TIME ZONE,
				processing_until TIMESTAMP WITH TIME ZONE,
				trigger_data JSONB,
				exit_reason TEXT,
				completed_at TIMESTAMP WITH TIME ZONE,
				dedup_key VARCHAR(512) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- The dedup key keeps concurrent identical trigger events from
			-- creating two active enrollments; terminal rows keep their key
			-- but drop out of the partial index so the customer can enroll
			-- again later.
			CREATE UNIQUE INDEX idx_enrollments_dedup
				ON enrollments(dedup_key) WHERE status = 'active';
			CREATE INDEX idx_enrollments_pending
				ON enrollments(store_id, status, next_step_at);
			CREATE INDEX idx_enrollments_workflow
				ON enrollments(store_id, workflow_id);

			CREATE TABLE step_logs (
				id UUID PRIMARY KEY,
				store_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL,
				enrollment_id UUID NOT NULL,
				customer_id VARCHAR(255) NOT NULL,
				step_index INT NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('success', 'failed')),
				error_message TEXT,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_step_logs_enrollment ON step_logs(store_id, enrollment_id, created_at);

			CREATE TABLE customers (
				id VARCHAR(255) NOT NULL,
				store_id VARCHAR(255) NOT NULL,
				email VARCHAR(255),
				phone VARCHAR(50),
				first_name VARCHAR(255),
				last_name VARCHAR(255),
				fields JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (store_id, id)
			);

			CREATE TABLE carts (
				id VARCHAR(255) NOT NULL,
				store_id VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255),
				email VARCHAR(255),
				total NUMERIC(12, 2) NOT NULL DEFAULT 0,
				items JSONB,
				metadata JSONB,
				is_abandoned_email_sent BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (store_id, id)
			);

			CREATE INDEX idx_carts_abandoned
				ON carts(store_id, updated_at) WHERE NOT is_abandoned_email_sent;

			CREATE TABLE unsubscribes (
				store_id VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (store_id, email)
			);
		`,
	}
}
