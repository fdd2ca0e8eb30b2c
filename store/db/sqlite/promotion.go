package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

// PromoteConversation runs the processor's useful branch as one transaction:
// topic upserts, conversation-topic links, pairwise co-occurrence edges,
// insight inserts and links, the consented global insight, the verdict stamp,
// and the audit row. Upserts are conflict-tolerant so a retried pass cannot
// double-count topics or duplicate links.
func (d *DB) PromoteConversation(ctx context.Context, promo *store.ConversationPromotion) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		topicIDs := make([]string, 0, len(promo.TopicNames))
		for _, name := range promo.TopicNames {
			name = store.NormalizeTopicName(name)
			if name == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO topic (id, name, created_ts)
				VALUES (?, ?, ?)
				ON CONFLICT (name) DO NOTHING
			`, uuid.NewString(), name, promo.Now); err != nil {
				return errors.Wrapf(err, "failed to upsert topic %s", name)
			}
			var id string
			if err := tx.QueryRowContext(ctx, `SELECT id FROM topic WHERE name = ?`, name).Scan(&id); err != nil {
				return errors.Wrapf(err, "failed to resolve topic %s", name)
			}
			topicIDs = append(topicIDs, id)

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_topic (conversation_id, topic_id)
				VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, promo.ConversationID, id); err != nil {
				return errors.Wrap(err, "failed to link conversation to topic")
			}
		}

		// Co-occurrence reinforcement: every unordered pair gets one edge in
		// canonical order, created at 0.5 or reinforced by 0.1, clamped to 1.
		for i := 0; i < len(topicIDs); i++ {
			for j := i + 1; j < len(topicIDs); j++ {
				src, dst := store.OrderedPair(topicIDs[i], topicIDs[j])
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO topic_relation (id, source_topic_id, target_topic_id, strength, relation_type)
					VALUES (?, ?, ?, ?, ?)
					ON CONFLICT (source_topic_id, target_topic_id)
					DO UPDATE SET strength = MIN(1.0, topic_relation.strength + 0.1)
				`, uuid.NewString(), src, dst, store.DefaultRelationStrength, store.DefaultRelationType); err != nil {
					return errors.Wrap(err, "failed to reinforce topic relation")
				}
			}
		}

		for _, insight := range promo.Insights {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO insight (id, conversation_id, user_id, content, importance_score, created_ts)
				VALUES (?, ?, ?, ?, ?, ?)
			`, insight.ID, promo.ConversationID, promo.UserID, insight.Content, store.ImportancePromoted, promo.Now); err != nil {
				return errors.Wrap(err, "failed to insert insight")
			}
			for _, topicID := range topicIDs {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO insight_topic (insight_id, topic_id)
					VALUES (?, ?)
					ON CONFLICT DO NOTHING
				`, insight.ID, topicID); err != nil {
					return errors.Wrap(err, "failed to link insight to topic")
				}
			}
		}

		if promo.ShareGlobal {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO global_insight (id, content, topic_ids, use_count, created_ts)
				VALUES (?, ?, ?, 0, ?)
				ON CONFLICT (id) DO UPDATE SET
					content = excluded.content,
					topic_ids = excluded.topic_ids
			`, store.GlobalInsightIDPrefix+promo.ConversationID, promo.Summary, store.JoinList(topicIDs), promo.Now); err != nil {
				return errors.Wrap(err, "failed to upsert global insight")
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversation
			SET summary = ?, processed = 1, is_useful = 1, usefulness_reason = ?
			WHERE id = ?
		`, promo.Summary, promo.Reason, promo.ConversationID); err != nil {
			return errors.Wrap(err, "failed to stamp conversation verdict")
		}

		topicsJSON, err := json.Marshal(promo.TopicNames)
		if err != nil {
			return errors.Wrap(err, "failed to marshal topics")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_log (conversation_id, user_id, created_ts, is_useful, reason, topics_extracted, insights_count)
			VALUES (?, ?, ?, 1, ?, ?, ?)
		`, promo.ConversationID, promo.UserID, promo.Now, promo.Reason, string(topicsJSON), len(promo.Insights)); err != nil {
			return errors.Wrap(err, "failed to append processing log")
		}
		return nil
	})
}

// DeleteConversationFromUserGraph soft-deletes a conversation: ownership is
// verified, owned insights (and their vector rows) are rewritten to the
// anonymous user, topic links are removed so the user's map deflates, and the
// row is marked deleted. Messages and global insights stay.
func (d *DB) DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		var deleted bool
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, deleted FROM conversation WHERE id = ?`, conversationID,
		).Scan(&owner, &deleted)
		if err == sql.ErrNoRows {
			return errors.Wrapf(store.ErrNotFound, "conversation %s", conversationID)
		}
		if err != nil {
			return errors.Wrap(err, "failed to load conversation")
		}
		if owner != userID || deleted {
			return errors.Wrapf(store.ErrNotFound, "conversation %s", conversationID)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE insight_embedding SET user_id = ?
			WHERE insight_id IN (SELECT id FROM insight WHERE conversation_id = ? AND user_id = ?)
		`, store.AnonymousUserID, conversationID, userID); err != nil {
			return errors.Wrap(err, "failed to anonymize insight embeddings")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE insight SET user_id = ? WHERE conversation_id = ? AND user_id = ?
		`, store.AnonymousUserID, conversationID, userID); err != nil {
			return errors.Wrap(err, "failed to anonymize insights")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM conversation_topic WHERE conversation_id = ?`, conversationID); err != nil {
			return errors.Wrap(err, "failed to unlink conversation topics")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversation SET deleted = 1, deleted_ts = strftime('%s', 'now') WHERE id = ?
		`, conversationID); err != nil {
			return errors.Wrap(err, "failed to mark conversation deleted")
		}
		return nil
	})
}
