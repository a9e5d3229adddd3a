package db

// SchemaSQL defines the annotation table. The record ID is the conversation
// key ("customer|conversation"); the full document is kept as JSON text so it
// round-trips byte-for-byte through the file format.
const SchemaSQL = `
    -- ==========================================================================
    -- ANNOTATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS annotation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS customer_id ON annotation TYPE string;
    DEFINE FIELD IF NOT EXISTS conversation_id ON annotation TYPE string;
    DEFINE FIELD IF NOT EXISTS document ON annotation TYPE string;
    DEFINE FIELD IF NOT EXISTS turn_count ON annotation TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON annotation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON annotation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS annotation_key ON annotation FIELDS customer_id, conversation_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS annotation_customer ON annotation FIELDS customer_id;
`
