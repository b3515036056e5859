package repository

// Schema definitions for the ClaimGuard database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    encounter_type TEXT NOT NULL DEFAULT '',
    service_date TEXT NOT NULL DEFAULT '',
    national_id TEXT NOT NULL DEFAULT '',
    member_id TEXT NOT NULL DEFAULT '',
    facility_id TEXT NOT NULL DEFAULT '',
    unique_id TEXT NOT NULL DEFAULT '',
    diagnosis_codes TEXT NOT NULL DEFAULT '[]',
    service_code TEXT NOT NULL DEFAULT '',
    paid_amount DOUBLE PRECISION,
    approval_number TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    error_type TEXT NOT NULL DEFAULT '',
    error_explanation TEXT NOT NULL DEFAULT '[]',
    recommended_action TEXT NOT NULL DEFAULT '',
    revision BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_error_type ON claims(tenant_id, error_type);
`

const schemaViolations = `
CREATE TABLE IF NOT EXISTS claim_violations (
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    rule_id TEXT NOT NULL,
    category TEXT NOT NULL,
    message TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    PRIMARY KEY (tenant_id, claim_id, position)
);

CREATE INDEX IF NOT EXISTS idx_claim_violations_rule ON claim_violations(tenant_id, rule_id);
`

const schemaMetrics = `
CREATE TABLE IF NOT EXISTS claim_metrics (
    tenant_id TEXT NOT NULL,
    category TEXT NOT NULL,
    claim_count INTEGER NOT NULL,
    paid_sum DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (tenant_id, category)
);
`

const schemaJobs = `
CREATE TABLE IF NOT EXISTS validation_jobs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    status TEXT NOT NULL,
    claims_selected INTEGER NOT NULL DEFAULT 0,
    claims_validated INTEGER NOT NULL DEFAULT 0,
    claims_not_validated INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_jobs_tenant ON validation_jobs(tenant_id, created_at);
`

// schemaRuleDocuments keeps tenant rule overrides exactly as uploaded.
const schemaRuleDocuments = `
CREATE TABLE IF NOT EXISTS rule_documents (
    tenant_id TEXT NOT NULL,
    category TEXT NOT NULL,
    document TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, category)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaViolations,
		schemaMetrics,
		schemaJobs,
		schemaRuleDocuments,
	}
}
