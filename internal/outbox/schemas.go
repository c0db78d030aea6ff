package outbox

const progressionCompletedSchema = `{
  "type": "object",
  "title": "ProgressionCompleted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "source": {"type": "string"},
    "xp_gained": {"type": "integer"},
    "total_xp": {"type": "integer"},
    "level": {"type": "integer"},
    "leveled_up": {"type": "boolean"},
    "new_badges": {"type": "array", "items": {"type": "string"}},
    "touched_challenges": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "source", "xp_gained", "total_xp", "level", "leveled_up", "occurred_at"],
  "additionalProperties": false
}`

const badgeUnlockedSchema = `{
  "type": "object",
  "title": "BadgeUnlocked",
  "properties": {
    "user_id": {"type": "string"},
    "badge_id": {"type": "string"},
    "badge_name": {"type": "string"},
    "rarity": {"type": "string"},
    "xp_reward": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "badge_id", "badge_name", "rarity", "xp_reward", "occurred_at"],
  "additionalProperties": false
}`
