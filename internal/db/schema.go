package db

const jobTable = "transcription_job"

// SchemaSQL defines the job table.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS transcription_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source_kind ON transcription_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source_ref ON transcription_job TYPE string;
    DEFINE FIELD IF NOT EXISTS duration_hint ON transcription_job TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS status ON transcription_job TYPE string
        ASSERT $value IN ["pending", "running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS result_artifact ON transcription_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON transcription_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS segments_done ON transcription_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS segments_total ON transcription_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS submitted_at ON transcription_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS started_at ON transcription_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON transcription_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_status ON transcription_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS job_submitted ON transcription_job FIELDS submitted_at;
`
