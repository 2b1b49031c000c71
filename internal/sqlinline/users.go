package sqlinline

const QCreateChatUsers = `--sql 8d0c4f3e-2b7a-4e51-9a3c-6f1e2d9b7c40
create table if not exists chat_users (
    user_id            text primary key,
    plan               text not null,
    daily_usage_count  int not null default 0,
    last_used_date     text not null default '',
    recent_turns       jsonb not null default '[]'::jsonb,
    created_at         timestamptz not null default now(),
    updated_at         timestamptz not null default now()
);
`

const QSelectChatUser = `--sql 3f6a9b21-7c4d-4e8f-b1a2-5d0c9e8f7a61
select user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at
from chat_users
where user_id = $1::text
limit 1;
`

const QSelectChatUsers = `--sql a27e5c90-1d3b-4f6a-8e2c-4b9d7f0a1c35
select user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at
from chat_users
order by user_id;
`

const QCountChatUsers = `--sql c4e7b2a9-5d18-4f3b-8a6e-1b9d0c7f2e54
select count(*) from chat_users;
`

const QUpsertChatUser = `--sql 6b1d8e47-9f2a-4c3e-a5b7-0e8c2d4f6a19
insert into chat_users (user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at)
values ($1::text, $2::text, $3::int, $4::text, coalesce($5::jsonb, '[]'::jsonb), coalesce($6::timestamptz, now()), now())
on conflict (user_id) do update set
    plan = excluded.plan,
    daily_usage_count = excluded.daily_usage_count,
    last_used_date = excluded.last_used_date,
    recent_turns = excluded.recent_turns,
    updated_at = now();
`

// QReplaceChatUsers swaps the whole table for the records in $1 (a jsonb
// array) in a single statement.
const QReplaceChatUsers = `--sql e9c3a7f5-4b2d-4a1e-9c8f-7d6b5a4e3c21
with
input as (
  select *
  from jsonb_to_recordset($1::jsonb) as x(
    user_id text,
    plan text,
    daily_usage_count int,
    last_used_date text,
    recent_turns jsonb,
    created_at timestamptz
  )
),
removed as (
  delete from chat_users
  where user_id not in (select user_id from input)
  returning user_id
),
upserted as (
  insert into chat_users (user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at)
  select
    user_id,
    plan,
    coalesce(daily_usage_count, 0),
    coalesce(last_used_date, ''),
    coalesce(recent_turns, '[]'::jsonb),
    coalesce(created_at, now()),
    now()
  from input
  on conflict (user_id) do update set
    plan = excluded.plan,
    daily_usage_count = excluded.daily_usage_count,
    last_used_date = excluded.last_used_date,
    recent_turns = excluded.recent_turns,
    updated_at = now()
  returning user_id
)
select (select count(*) from removed), (select count(*) from upserted);
`
