package postgres

// SQL for the scoreboard tables. Writes that guard an at-most-once transition
// use ON CONFLICT DO NOTHING / conditional UPDATE and report the lost race as
// storage.ErrDuplicate.

const (
	// queryInsertLedgerEntry appends a ledger row. ON CONFLICT DO NOTHING
	// returns no rows (sql.ErrNoRows) for an existing idempotency key.
	queryInsertLedgerEntry = `
		INSERT INTO points_ledger (
			id, idempotency_key, user_id, event_type, points,
			entity_type, entity_id, circle_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`

	// queryInsertLedgerSlot reserves the entry's slot key. A taken slot
	// returns no rows.
	queryInsertLedgerSlot = `
		INSERT INTO ledger_slots (slot_key, ledger_id)
		VALUES ($1, $2)
		ON CONFLICT (slot_key) DO NOTHING
		RETURNING slot_key
	`

	// queryUpsertUserScore applies points to the aggregate under the row lock
	// taken by the upsert. daily_score restarts when score_day changes and
	// neither counter drops below zero.
	queryUpsertUserScore = `
		INSERT INTO user_scores (user_id, total_score, daily_score, score_day, circle_id, updated_at)
		VALUES ($1, GREATEST($2, 0), GREATEST($2, 0), $3::date, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			total_score = GREATEST(user_scores.total_score + $2, 0),
			daily_score = CASE
				WHEN user_scores.score_day = EXCLUDED.score_day THEN GREATEST(user_scores.daily_score + $2, 0)
				ELSE GREATEST($2, 0)
			END,
			score_day  = EXCLUDED.score_day,
			circle_id  = CASE WHEN EXCLUDED.circle_id <> '' THEN EXCLUDED.circle_id ELSE user_scores.circle_id END,
			updated_at = EXCLUDED.updated_at
		RETURNING total_score, daily_score, circle_id, updated_at
	`

	queryUpsertCircleScore = `
		INSERT INTO circle_scores (circle_id, total_score, updated_at)
		VALUES ($1, GREATEST($2, 0), $3)
		ON CONFLICT (circle_id) DO UPDATE SET
			total_score = GREATEST(circle_scores.total_score + $2, 0),
			updated_at  = EXCLUDED.updated_at
	`

	queryHasLedgerEntry = `SELECT EXISTS (SELECT 1 FROM points_ledger WHERE idempotency_key = $1)`

	queryCountLedgerEntriesSince = `
		SELECT COUNT(*)
		FROM points_ledger
		WHERE user_id = $1
		  AND event_type = $2
		  AND created_at >= $3
	`

	// querySelectScore resolves daily_score against the caller's day so a
	// stale day reads as zero.
	querySelectScore = `
		SELECT total_score,
		       CASE WHEN score_day = $2::date THEN daily_score ELSE 0 END,
		       circle_id, updated_at
		FROM user_scores
		WHERE user_id = $1
	`

	queryTopScores = `
		SELECT user_id, total_score,
		       CASE WHEN score_day = $1::date THEN daily_score ELSE 0 END,
		       circle_id, updated_at
		FROM user_scores
		ORDER BY total_score DESC, user_id ASC
		LIMIT $2
	`

	querySelectCircleScore = `SELECT total_score FROM circle_scores WHERE circle_id = $1`
)

const (
	queryAppendEvent = `
		INSERT INTO events (
			id, user_id, event_type, entity_type, entity_id,
			context, points, status, occurred_at, logged_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`

	// queryListEvents filters by user; empty type lists, NULL bounds and an
	// empty status do not filter. Bounds apply to logged_at.
	queryListEvents = `
		SELECT id, user_id, event_type, entity_type, entity_id,
		       context, points, status, occurred_at, logged_at
		FROM events
		WHERE user_id = $1
		  AND (cardinality($2::text[]) = 0 OR event_type = ANY($2::text[]))
		  AND ($3::timestamptz IS NULL OR logged_at >= $3::timestamptz)
		  AND ($4::timestamptz IS NULL OR logged_at < $4::timestamptz)
		  AND ($5::text = '' OR status = $5::text)
		ORDER BY logged_at ASC, occurred_at ASC
	`

	queryCountEvents = `
		SELECT COUNT(*)
		FROM events
		WHERE user_id = $1
		  AND (cardinality($2::text[]) = 0 OR event_type = ANY($2::text[]))
		  AND ($3::timestamptz IS NULL OR logged_at >= $3::timestamptz)
		  AND ($4::timestamptz IS NULL OR logged_at < $4::timestamptz)
		  AND ($5::text = '' OR status = $5::text)
	`

	queryDeleteEventsBefore = `DELETE FROM events WHERE logged_at < $1`
)

const (
	querySelectStreakForUpdate = `
		SELECT current_streak, longest_streak,
		       COALESCE(to_char(last_activity, 'YYYY-MM-DD'), ''),
		       grace_remaining, updated_at
		FROM streaks
		WHERE user_id = $1 AND streak_type = $2
		FOR UPDATE
	`

	queryInitStreak = `
		INSERT INTO streaks (user_id, streak_type, grace_remaining, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, streak_type) DO NOTHING
	`

	queryUpdateStreak = `
		UPDATE streaks
		SET current_streak  = $3,
		    longest_streak  = $4,
		    last_activity   = NULLIF($5, '')::date,
		    grace_remaining = $6,
		    updated_at      = $7
		WHERE user_id = $1 AND streak_type = $2
	`

	querySelectStreak = `
		SELECT current_streak, longest_streak,
		       COALESCE(to_char(last_activity, 'YYYY-MM-DD'), ''),
		       grace_remaining, updated_at
		FROM streaks
		WHERE user_id = $1 AND streak_type = $2
	`

	queryResetGrace = `
		UPDATE streaks
		SET grace_remaining = $1, updated_at = $2
		WHERE grace_remaining <> $1
	`
)

const (
	queryHighestMilestone = `
		SELECT COALESCE(MAX(milestone_value), 0)
		FROM milestones
		WHERE user_id = $1 AND milestone_type = $2 AND target_entity_id = $3
	`

	queryRecordMilestone = `
		INSERT INTO milestones (user_id, milestone_type, target_entity_id, milestone_value, points, awarded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, milestone_type, target_entity_id, milestone_value) DO NOTHING
	`
)

const (
	// queryIncrementTaskProgress creates or advances an instance. The WHERE on
	// the update side leaves completed and expired instances alone, in which
	// case no row is returned.
	queryIncrementTaskProgress = `
		INSERT INTO task_progress (
			user_id, task_slug, period_start, period_end,
			current_value, target_value, status, updated_at
		)
		VALUES ($1, $2, $3, $4, LEAST($5::int, $6::int), $6::int, 'active', $7)
		ON CONFLICT (user_id, task_slug, period_start) DO UPDATE SET
			current_value = LEAST(task_progress.current_value + $5::int, task_progress.target_value),
			updated_at    = EXCLUDED.updated_at
		WHERE task_progress.is_completed = FALSE
		  AND task_progress.status = 'active'
		RETURNING period_end, current_value, target_value, is_completed, completed_at, status, updated_at
	`

	querySelectTaskProgress = `
		SELECT period_end, current_value, target_value, is_completed, completed_at, status, updated_at
		FROM task_progress
		WHERE user_id = $1 AND task_slug = $2 AND period_start = $3
	`

	queryMarkTaskCompleted = `
		UPDATE task_progress
		SET is_completed = TRUE,
		    completed_at = $4,
		    status       = 'completed',
		    updated_at   = $4
		WHERE user_id = $1 AND task_slug = $2 AND period_start = $3
		  AND is_completed = FALSE
	`

	queryListTaskProgress = `
		SELECT user_id, task_slug, period_start, period_end, current_value, target_value,
		       is_completed, completed_at, status, updated_at
		FROM task_progress
		WHERE user_id = $1
		  AND period_start <= $2
		  AND period_end > $2
		ORDER BY task_slug ASC
	`

	queryExpireTasks = `
		UPDATE task_progress
		SET status = 'expired', updated_at = $2
		WHERE status = 'active'
		  AND is_completed = FALSE
		  AND period_end <= $2
		  AND task_slug = ANY($1::text[])
	`

	queryUpsertTaskDefinition = `
		INSERT INTO task_definitions (
			slug, title, task_type, target_value, scoring_event_types, reward_score,
			badge_progress_contribution, reward_badge_id, is_active, progress_field, period, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (slug) DO UPDATE SET
			title                       = EXCLUDED.title,
			task_type                   = EXCLUDED.task_type,
			target_value                = EXCLUDED.target_value,
			scoring_event_types         = EXCLUDED.scoring_event_types,
			reward_score                = EXCLUDED.reward_score,
			badge_progress_contribution = EXCLUDED.badge_progress_contribution,
			reward_badge_id             = EXCLUDED.reward_badge_id,
			is_active                   = EXCLUDED.is_active,
			progress_field              = EXCLUDED.progress_field,
			period                      = EXCLUDED.period,
			updated_at                  = EXCLUDED.updated_at
	`

	queryListTaskDefinitions = `
		SELECT slug, title, task_type, target_value, scoring_event_types, reward_score,
		       badge_progress_contribution, reward_badge_id, is_active, progress_field, period
		FROM task_definitions
		ORDER BY slug ASC
	`
)

const (
	queryListUserBadges = `
		SELECT badge_slug, progress, earned, earned_at, updated_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY badge_slug ASC
	`

	querySelectUserBadge = `
		SELECT badge_slug, progress, earned, earned_at, updated_at
		FROM user_badges
		WHERE user_id = $1 AND badge_slug = $2
	`

	queryRaiseBadgeProgress = `
		INSERT INTO user_badges (user_id, badge_slug, progress, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_slug) DO UPDATE SET
			progress   = GREATEST(user_badges.progress, EXCLUDED.progress),
			updated_at = EXCLUDED.updated_at
		WHERE user_badges.earned = FALSE
		RETURNING badge_slug, progress, earned, earned_at, updated_at
	`

	queryAddBadgeProgress = `
		INSERT INTO user_badges (user_id, badge_slug, progress, updated_at)
		VALUES ($1, $2, LEAST($3::int, $4::int), $5)
		ON CONFLICT (user_id, badge_slug) DO UPDATE SET
			progress   = LEAST(user_badges.progress + $3::int, $4::int),
			updated_at = EXCLUDED.updated_at
		WHERE user_badges.earned = FALSE
		RETURNING badge_slug, progress, earned, earned_at, updated_at
	`

	// queryEarnBadge flips earned once; a row that is already earned is not
	// updated and no row is returned.
	queryEarnBadge = `
		INSERT INTO user_badges (user_id, badge_slug, progress, earned, earned_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (user_id, badge_slug) DO UPDATE SET
			earned     = TRUE,
			earned_at  = EXCLUDED.earned_at,
			progress   = GREATEST(user_badges.progress, EXCLUDED.progress),
			updated_at = EXCLUDED.updated_at
		WHERE user_badges.earned = FALSE
		RETURNING badge_slug
	`
)

const (
	// queryAddContribution inserts and returns the instance total. The outer
	// SELECT does not see the CTE's row, so its amount is added explicitly.
	queryAddContribution = `
		WITH inserted AS (
			INSERT INTO circle_contributions (circle_id, user_id, task_slug, period_start, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING amount
		)
		SELECT COALESCE(SUM(c.amount), 0) + (SELECT amount FROM inserted)
		FROM circle_contributions c
		WHERE c.circle_id = $1 AND c.task_slug = $3 AND c.period_start = $4
	`

	queryContributionShares = `
		SELECT user_id, SUM(amount) AS amount
		FROM circle_contributions
		WHERE circle_id = $1 AND task_slug = $2 AND period_start = $3
		GROUP BY user_id
		ORDER BY amount DESC, user_id ASC
	`

	queryCompleteCircleTask = `
		INSERT INTO circle_task_completions (circle_id, task_slug, period_start, completed_by, completed_at, total)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (circle_id, task_slug, period_start) DO NOTHING
		RETURNING circle_id
	`

	queryUserCircleTasks = `
		SELECT c.circle_id, c.task_slug, c.period_start,
		       COALESCE(SUM(c.amount) FILTER (WHERE c.user_id = $1), 0) AS user_amount,
		       SUM(c.amount) AS total_amount,
		       t.completed_by, t.completed_at, t.total
		FROM circle_contributions c
		LEFT JOIN circle_task_completions t
		       ON t.circle_id = c.circle_id
		      AND t.task_slug = c.task_slug
		      AND t.period_start = c.period_start
		WHERE (c.circle_id, c.task_slug, c.period_start) IN (
			SELECT circle_id, task_slug, period_start
			FROM circle_contributions
			WHERE user_id = $1
		)
		GROUP BY c.circle_id, c.task_slug, c.period_start, t.completed_by, t.completed_at, t.total
		ORDER BY c.period_start ASC, c.circle_id ASC, c.task_slug ASC
	`
)

const (
	querySaveNotification = `
		INSERT INTO notifications (id, user_id, notification_type, title, body, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	queryListNotifications = `
		SELECT id, user_id, notification_type, title, body, params, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
)

const (
	// queryCreateSnapshots freezes every aggregate for one period. period_score
	// is the ledger sum inside [start, end).
	queryCreateSnapshots = `
		INSERT INTO score_snapshots (user_id, period_type, period_start, total_score, period_score, created_at)
		SELECT s.user_id, $1, $2, s.total_score,
		       COALESCE((
		           SELECT SUM(l.points)
		           FROM points_ledger l
		           WHERE l.user_id = s.user_id
		             AND l.created_at >= $2
		             AND l.created_at < $3
		       ), 0),
		       $4
		FROM user_scores s
		ON CONFLICT (user_id, period_type, period_start) DO NOTHING
	`

	queryListSnapshots = `
		SELECT user_id, period_type, period_start, total_score, period_score, created_at
		FROM score_snapshots
		WHERE period_type = $1 AND period_start = $2
		ORDER BY period_score DESC, user_id ASC
		LIMIT $3
	`
)

const (
	querySelectProfile = `SELECT is_pro, circle_id FROM user_profiles WHERE user_id = $1`

	querySelectEntity = `
		SELECT author_id, slug, reward_points, like_count
		FROM content_entities
		WHERE entity_type = $1 AND entity_id = $2
	`

	queryProfileViews = `
		SELECT user_id, COUNT(*)
		FROM profile_views
		WHERE viewed_at >= $1 AND viewed_at < $2
		GROUP BY user_id
	`
)
