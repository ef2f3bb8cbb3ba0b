package api

// Amounts accept a JSON number or a decimal string; JSON itself rejects
// NaN/Inf, the pattern rejects anything that is not a plain decimal, and
// minimum rejects negative numbers before the core runs.

const createAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "type"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 255},
    "type": {"type": "string", "enum": ["CASH", "BANK", "CREDIT", "LOAN", "INVESTMENT", "WALLET", "ASSET", "OTHER"]},
    "currency": {"type": "string", "maxLength": 8},
    "initial_balance": {"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
    "visibility": {"type": "string", "enum": ["FAMILY", "PRIVATE"]},
    "shares": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["user_id", "level"],
        "properties": {
          "user_id": {"type": "string", "minLength": 1},
          "level": {"type": "string", "enum": ["READ", "WRITE"]}
        }
      }
    }
  }
}`

const createTransactionSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["type", "amount", "from_account_id"],
  "properties": {
    "type": {"type": "string", "enum": ["INCOME", "EXPENSE", "TRANSFER"]},
    "amount": {"type": ["number", "string"], "minimum": 0, "pattern": "^[0-9]+(\\.[0-9]+)?$"},
    "category_id": {"type": "string"},
    "from_account_id": {"type": "string", "minLength": 1},
    "to_account_id": {"type": "string"},
    "description": {"type": "string", "maxLength": 1024},
    "transaction_date": {"type": "string", "format": "date-time"}
  }
}`

const updateTransactionSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "type": {"type": "string", "enum": ["INCOME", "EXPENSE", "TRANSFER"]},
    "amount": {"type": ["number", "string"], "minimum": 0, "pattern": "^[0-9]+(\\.[0-9]+)?$"},
    "category_id": {"type": "string"},
    "from_account_id": {"type": "string", "minLength": 1},
    "to_account_id": {"type": "string"},
    "description": {"type": "string", "maxLength": 1024},
    "transaction_date": {"type": "string", "format": "date-time"}
  }
}`

const reconcileSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["actual_balance"],
  "properties": {
    "actual_balance": {"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}
  }
}`
