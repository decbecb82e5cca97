// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

// schemaTemplate is the full DDL. {{serial64}} and {{blob}} are
// replaced per driver.
const schemaTemplate = `
CREATE TABLE users (
	id {{serial64}},
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_digest {{blob}} NOT NULL,
	country TEXT NOT NULL DEFAULT 'XX',
	privileges INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	last_visit_at TIMESTAMP NOT NULL,
	is_supporter BOOLEAN NOT NULL DEFAULT FALSE,
	play_mode INTEGER NOT NULL DEFAULT 0,
	profile_color TEXT,
	profile_hue INTEGER,
	cover_url TEXT NOT NULL DEFAULT '',
	page_raw TEXT NOT NULL DEFAULT '',
	page_html TEXT NOT NULL DEFAULT '',
	previous_usernames TEXT NOT NULL DEFAULT '',
	silenced_until TIMESTAMP,
	donor_until TIMESTAMP,
	team_id BIGINT
);

CREATE TABLE user_statistics (
	user_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	total_score BIGINT NOT NULL DEFAULT 0,
	ranked_score BIGINT NOT NULL DEFAULT 0,
	pp DOUBLE PRECISION NOT NULL DEFAULT 0,
	hit_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	play_count BIGINT NOT NULL DEFAULT 0,
	play_time BIGINT NOT NULL DEFAULT 0,
	total_hits BIGINT NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	count_xh INTEGER NOT NULL DEFAULT 0,
	count_x INTEGER NOT NULL DEFAULT 0,
	count_sh INTEGER NOT NULL DEFAULT 0,
	count_s INTEGER NOT NULL DEFAULT 0,
	count_a INTEGER NOT NULL DEFAULT 0,
	level INTEGER NOT NULL DEFAULT 1,
	level_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	global_rank BIGINT NOT NULL DEFAULT 0,
	country_rank BIGINT NOT NULL DEFAULT 0,
	replays_watched BIGINT NOT NULL DEFAULT 0,
	is_ranked BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (user_id, ruleset)
);

CREATE TABLE relationships (
	user_id BIGINT NOT NULL,
	target_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, target_id)
);

CREATE TABLE teams (
	id {{serial64}},
	name TEXT NOT NULL UNIQUE,
	short_name TEXT NOT NULL,
	leader_id BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE oauth_clients (
	id {{serial64}},
	owner_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	secret TEXT NOT NULL,
	redirect_uri TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE oauth_tokens (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	client_id BIGINT NOT NULL,
	jti TEXT NOT NULL UNIQUE,
	refresh TEXT NOT NULL UNIQUE,
	scopes TEXT NOT NULL DEFAULT '*',
	session_id BIGINT NOT NULL DEFAULT 0,
	access_expires_at TIMESTAMP NOT NULL,
	refresh_expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP
);

CREATE TABLE login_sessions (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	verified_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);

CREATE TABLE trusted_devices (
	user_id BIGINT NOT NULL,
	fingerprint TEXT NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	last_seen_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, fingerprint)
);

CREATE TABLE login_log (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	success BOOLEAN NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE totp_credentials (
	user_id BIGINT NOT NULL PRIMARY KEY,
	secret TEXT NOT NULL,
	backup_codes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE api_keys (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP
);

CREATE TABLE beatmapsets (
	id BIGINT NOT NULL PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	title_unicode TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	artist_unicode TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	creator_id BIGINT NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 0,
	video BOOLEAN NOT NULL DEFAULT FALSE,
	storyboard BOOLEAN NOT NULL DEFAULT FALSE,
	nsfw BOOLEAN NOT NULL DEFAULT FALSE,
	genre_id INTEGER NOT NULL DEFAULT 0,
	language_id INTEGER NOT NULL DEFAULT 0,
	play_count BIGINT NOT NULL DEFAULT 0,
	favourite_count BIGINT NOT NULL DEFAULT 0,
	submitted_at TIMESTAMP NOT NULL,
	ranked_at TIMESTAMP,
	last_updated TIMESTAMP NOT NULL,
	synced_at TIMESTAMP NOT NULL
);

CREATE TABLE beatmaps (
	id BIGINT NOT NULL PRIMARY KEY,
	beatmapset_id BIGINT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	ruleset INTEGER NOT NULL DEFAULT 0,
	status INTEGER NOT NULL DEFAULT 0,
	total_length INTEGER NOT NULL DEFAULT 0,
	hit_length INTEGER NOT NULL DEFAULT 0,
	bpm DOUBLE PRECISION NOT NULL DEFAULT 0,
	cs DOUBLE PRECISION NOT NULL DEFAULT 0,
	ar DOUBLE PRECISION NOT NULL DEFAULT 0,
	od DOUBLE PRECISION NOT NULL DEFAULT 0,
	hp DOUBLE PRECISION NOT NULL DEFAULT 0,
	star_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	count_circles INTEGER NOT NULL DEFAULT 0,
	count_sliders INTEGER NOT NULL DEFAULT 0,
	count_spinners INTEGER NOT NULL DEFAULT 0,
	playcount BIGINT NOT NULL DEFAULT 0,
	passcount BIGINT NOT NULL DEFAULT 0,
	last_updated TIMESTAMP NOT NULL,
	synced_at TIMESTAMP NOT NULL
);
CREATE INDEX beatmaps_checksum ON beatmaps (checksum);
CREATE INDEX beatmaps_set ON beatmaps (beatmapset_id);

CREATE TABLE favourites (
	user_id BIGINT NOT NULL,
	beatmapset_id BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, beatmapset_id)
);

CREATE TABLE ratings (
	user_id BIGINT NOT NULL,
	beatmapset_id BIGINT NOT NULL,
	score INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, beatmapset_id)
);

CREATE TABLE scores (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	mods TEXT NOT NULL DEFAULT '',
	total_score BIGINT NOT NULL DEFAULT 0,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	rank TEXT NOT NULL DEFAULT 'F',
	passed BOOLEAN NOT NULL DEFAULT FALSE,
	perfect BOOLEAN NOT NULL DEFAULT FALSE,
	statistics TEXT NOT NULL DEFAULT '',
	maximum_statistics TEXT NOT NULL DEFAULT '',
	pp DOUBLE PRECISION,
	pinned_order INTEGER NOT NULL DEFAULT 0,
	replay_filename TEXT NOT NULL DEFAULT '',
	build_id TEXT NOT NULL DEFAULT '',
	ended_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX scores_user_ruleset ON scores (user_id, ruleset, ended_at);
CREATE INDEX scores_beatmap ON scores (beatmap_id, ruleset);

CREATE TABLE score_tokens (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	room_id BIGINT NOT NULL DEFAULT 0,
	playlist_item_id BIGINT NOT NULL DEFAULT 0,
	score_id BIGINT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE best_scores (
	user_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	score_id BIGINT NOT NULL,
	total_score BIGINT NOT NULL DEFAULT 0,
	pp DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	rank TEXT NOT NULL DEFAULT 'F',
	mods TEXT NOT NULL DEFAULT '',
	ended_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, beatmap_id, ruleset)
);
CREATE INDEX best_scores_board ON best_scores (beatmap_id, ruleset, total_score, score_id);

CREATE TABLE pp_best_scores (
	user_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	score_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	pp DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, ruleset, score_id)
);

CREATE TABLE playcounts (
	user_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	count BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, beatmap_id)
);

CREATE TABLE chat_channels (
	id {{serial64}},
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	icon TEXT NOT NULL DEFAULT '',
	moderated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE chat_messages (
	id BIGINT NOT NULL PRIMARY KEY,
	channel_id BIGINT NOT NULL,
	sender_id BIGINT NOT NULL,
	content TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'plain',
	client_uuid TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX chat_messages_channel ON chat_messages (channel_id, id);

CREATE TABLE chat_silences (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	channel_id BIGINT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE rooms (
	id {{serial64}},
	name TEXT NOT NULL,
	host_id BIGINT NOT NULL,
	category TEXT NOT NULL,
	type TEXT NOT NULL,
	queue_mode TEXT NOT NULL DEFAULT 'host_only',
	status TEXT NOT NULL DEFAULT 'idle',
	password TEXT NOT NULL DEFAULT '',
	channel_id BIGINT NOT NULL DEFAULT 0,
	participant_count INTEGER NOT NULL DEFAULT 0,
	max_participants INTEGER NOT NULL DEFAULT 0,
	starts_at TIMESTAMP NOT NULL,
	ends_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE playlist_items (
	id {{serial64}},
	room_id BIGINT NOT NULL,
	owner_id BIGINT NOT NULL,
	beatmap_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	required_mods TEXT NOT NULL DEFAULT '',
	allowed_mods TEXT NOT NULL DEFAULT '',
	play_order INTEGER NOT NULL DEFAULT 0,
	expired BOOLEAN NOT NULL DEFAULT FALSE,
	played_at TIMESTAMP
);
CREATE INDEX playlist_items_room ON playlist_items (room_id, play_order);

CREATE TABLE room_participants (
	room_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	joined_at TIMESTAMP NOT NULL,
	left_at TIMESTAMP,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE room_best_scores (
	room_id BIGINT NOT NULL,
	playlist_item_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	score_id BIGINT NOT NULL,
	total_score BIGINT NOT NULL DEFAULT 0,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	pp DOUBLE PRECISION NOT NULL DEFAULT 0,
	passed BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (room_id, playlist_item_id, user_id)
);

CREATE TABLE room_attempts (
	room_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	count BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE room_events (
	id {{serial64}},
	room_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL DEFAULT 0,
	type TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);

CREATE TABLE daily_challenge_stats (
	user_id BIGINT NOT NULL PRIMARY KEY,
	daily_streak_current INTEGER NOT NULL DEFAULT 0,
	daily_streak_best INTEGER NOT NULL DEFAULT 0,
	weekly_streak_current INTEGER NOT NULL DEFAULT 0,
	weekly_streak_best INTEGER NOT NULL DEFAULT 0,
	play_count BIGINT NOT NULL DEFAULT 0,
	last_played_on TIMESTAMP
);

CREATE TABLE activity_events (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	type TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX activity_events_user ON activity_events (user_id, id);

CREATE TABLE rank_history (
	user_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	date TIMESTAMP NOT NULL,
	rank BIGINT NOT NULL,
	PRIMARY KEY (user_id, ruleset, date)
);

CREATE TABLE rank_tops (
	user_id BIGINT NOT NULL,
	ruleset INTEGER NOT NULL,
	rank BIGINT NOT NULL,
	PRIMARY KEY (user_id, ruleset)
);

CREATE TABLE notifications (
	id {{serial64}},
	user_id BIGINT NOT NULL,
	source_id BIGINT NOT NULL DEFAULT 0,
	name TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX notifications_user ON notifications (user_id, id);

CREATE TABLE user_achievements (
	user_id BIGINT NOT NULL,
	medal TEXT NOT NULL,
	unlocked_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, medal)
);
`
